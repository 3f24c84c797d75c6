package social

import (
	"context"
	"fmt"
	"strings"
)

// RoundResult is what gets posted to the feed after settlement.
type RoundResult struct {
	RoundID    uint64
	Winner     string
	AlphaScore uint32
	BetaScore  uint32
}

// PublishRoundResult posts the round outcome under the house profile. Errors
// are logged by the transport and never returned to the lifecycle.
func (c *Client) PublishRoundResult(ctx context.Context, houseWallet string, result RoundResult) {
	if !c.IsConfigured() {
		return
	}

	profileID, err := c.findOrCreateProfile(ctx, houseWallet)
	if err != nil || profileID == "" {
		return
	}

	winner := strings.ToLower(result.Winner)
	var text string
	switch winner {
	case "draw":
		text = fmt.Sprintf("Round #%d settled in a DRAW.", result.RoundID)
	case "alpha", "beta":
		text = fmt.Sprintf("Round #%d settled: %s wins! (score: %d vs %d)",
			result.RoundID, strings.ToUpper(winner), result.AlphaScore, result.BetaScore)
	default:
		text = fmt.Sprintf("Round #%d settled.", result.RoundID)
	}

	properties := []map[string]string{
		{"key": "type", "value": "round_result"},
		{"key": "round_id", "value": fmt.Sprintf("%d", result.RoundID)},
		{"key": "winner", "value": winner},
		{"key": "alpha_score", "value": fmt.Sprintf("%d", result.AlphaScore)},
		{"key": "beta_score", "value": fmt.Sprintf("%d", result.BetaScore)},
		{"key": "text", "value": text},
	}

	_, _ = c.request(ctx, "/contents/findOrCreate", map[string]any{
		"id":         fmt.Sprintf("result-%d", result.RoundID),
		"profileId":  profileID,
		"properties": properties,
		"execution":  "FAST_UNCONFIRMED",
	})
}
