// Package gateway fans round state out to WebSocket viewers over a
// topic-based subscription protocol.
package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"snakepit-crank/internal/chain"
)

// Error codes sent in error_v1 events.
const (
	CodeInvalidMessage       = "INVALID_MESSAGE"
	CodeTooManySubscriptions = "TOO_MANY_SUBSCRIPTIONS"
)

const topicPrefix = "round:"

// RoundStateEvent is the round_state_v1 wire event. Round ids travel as
// decimal strings so browser clients never lose 64-bit precision.
type RoundStateEvent struct {
	Type       string  `json:"type"`
	Ts         int64   `json:"ts"`
	RoundID    string  `json:"roundId"`
	Status     string  `json:"status"`
	MoveCount  uint64  `json:"moveCount"`
	Winner     *string `json:"winner"`
	AlphaScore uint32  `json:"alphaScore"`
	BetaScore  uint32  `json:"betaScore"`
	AlphaAlive bool    `json:"alphaAlive"`
	BetaAlive  bool    `json:"betaAlive"`
	AlphaBoard []uint8 `json:"alphaBoard"`
	BetaBoard  []uint8 `json:"betaBoard"`
}

// RoundTransitionEvent is the round_transition_v1 wire event.
type RoundTransitionEvent struct {
	Type    string `json:"type"`
	Ts      int64  `json:"ts"`
	RoundID string `json:"roundId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// SnapshotEvent is the snapshot_v1 wire event sent to late subscribers.
type SnapshotEvent struct {
	Type       string          `json:"type"`
	Ts         int64           `json:"ts"`
	Topic      string          `json:"topic"`
	RoundState RoundStateEvent `json:"roundState"`
}

type subscribedEvent struct {
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Topic string `json:"topic"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Ts      int64  `json:"ts"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SerializeRoundState translates a decoded round account into the canonical
// broadcast shape. Each call produces a fresh event; events are never mutated
// after construction.
func SerializeRoundState(round *chain.Round) RoundStateEvent {
	ev := RoundStateEvent{
		Type:       "round_state_v1",
		Ts:         time.Now().UnixMilli(),
		RoundID:    strconv.FormatUint(round.ID, 10),
		Status:     round.Status.String(),
		MoveCount:  round.MoveCount,
		AlphaScore: round.AlphaScore,
		BetaScore:  round.BetaScore,
		AlphaAlive: round.AlphaAlive,
		BetaAlive:  round.BetaAlive,
		AlphaBoard: append([]uint8(nil), round.AlphaBoard[:]...),
		BetaBoard:  append([]uint8(nil), round.BetaBoard[:]...),
	}
	if round.Winner != nil {
		winner := round.Winner.String()
		ev.Winner = &winner
	}
	return ev
}

// parseSubscribe validates the single inbound message kind:
// {"type":"subscribe","topic":"round:<uint64>"}.
func parseSubscribe(raw []byte) (topic string, err error) {
	var msg struct {
		Type  string `json:"type"`
		Topic string `json:"topic"`
	}
	if jsonErr := json.Unmarshal(raw, &msg); jsonErr != nil {
		return "", fmt.Errorf("malformed json: %w", jsonErr)
	}
	if msg.Type != "subscribe" {
		return "", fmt.Errorf("unsupported message type %q", msg.Type)
	}
	id, ok := strings.CutPrefix(msg.Topic, topicPrefix)
	if !ok || id == "" {
		return "", fmt.Errorf("topic %q does not match round:<id>", msg.Topic)
	}
	if _, parseErr := strconv.ParseUint(id, 10, 64); parseErr != nil {
		return "", fmt.Errorf("topic %q does not match round:<id>", msg.Topic)
	}
	return msg.Topic, nil
}

// sameObservableState reports whether two state events are equivalent in every
// field a viewer can observe, ignoring the emission timestamp. Board contents
// are a function of the move count, so comparing the scalar fields suffices.
func sameObservableState(a, b RoundStateEvent) bool {
	if a.MoveCount != b.MoveCount || a.Status != b.Status {
		return false
	}
	if a.AlphaScore != b.AlphaScore || a.BetaScore != b.BetaScore {
		return false
	}
	if a.AlphaAlive != b.AlphaAlive || a.BetaAlive != b.BetaAlive {
		return false
	}
	if (a.Winner == nil) != (b.Winner == nil) {
		return false
	}
	if a.Winner != nil && *a.Winner != *b.Winner {
		return false
	}
	return true
}
