// Package archive persists a summary row per completed round so operators and
// the UI can query recent history after the on-ledger accounts are swept.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultRecentLimit = 50

// RoundRecord is one completed round's summary.
type RoundRecord struct {
	RoundID    uint64 `json:"round_id,string"`
	Winner     string `json:"winner"`
	AlphaScore uint32 `json:"alpha_score"`
	BetaScore  uint32 `json:"beta_score"`
	MoveCount  uint64 `json:"move_count"`

	TotalBets        int `json:"total_bets"`
	LosingClosed     int `json:"losing_closed"`
	WinningClosed    int `json:"winning_closed"`
	WinningUnclaimed int `json:"winning_unclaimed"`

	BettingWindowMs  int64 `json:"betting_window_ms"`
	GameDurationMs   int64 `json:"game_duration_ms"`
	SettleDurationMs int64 `json:"settle_duration_ms"`
	TotalRoundMs     int64 `json:"total_round_ms"`

	SettledAt time.Time `json:"settled_at"`
}

// Service stores and lists round records. Implementations must be safe for
// concurrent use.
type Service interface {
	Close() error
	RecordRound(ctx context.Context, record RoundRecord) error
	ListRecent(ctx context.Context, limit int) ([]RoundRecord, error)
}

type noopService struct{}

func (noopService) Close() error                                   { return nil }
func (noopService) RecordRound(context.Context, RoundRecord) error { return nil }
func (noopService) ListRecent(context.Context, int) ([]RoundRecord, error) {
	return []RoundRecord{}, nil
}

// NewService picks a backend by mode: "none" (default), "sqlite" or
// "postgres". It returns the resolved mode for startup logging.
func NewService(mode, dsn string) (Service, string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "none", "noop":
		return noopService{}, "none", nil
	case "sqlite", "local":
		service, err := NewSQLiteService(dsn)
		if err != nil {
			return nil, "", err
		}
		return service, "sqlite", nil
	case "postgres", "postgresql", "pg":
		service, err := NewPostgresService(dsn)
		if err != nil {
			return nil, "", err
		}
		return service, "postgres", nil
	default:
		return nil, "", fmt.Errorf("invalid ARCHIVE_MODE %q (supported: none, sqlite, postgres)", mode)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultRecentLimit
	}
	return limit
}
