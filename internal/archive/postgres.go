package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS round_history (
    round_id          BIGINT PRIMARY KEY,
    winner            TEXT    NOT NULL,
    alpha_score       INTEGER NOT NULL,
    beta_score        INTEGER NOT NULL,
    move_count        BIGINT  NOT NULL,
    total_bets        INTEGER NOT NULL,
    losing_closed     INTEGER NOT NULL,
    winning_closed    INTEGER NOT NULL,
    winning_unclaimed INTEGER NOT NULL,
    betting_window_ms BIGINT  NOT NULL,
    game_duration_ms  BIGINT  NOT NULL,
    settle_duration_ms BIGINT NOT NULL,
    total_round_ms    BIGINT  NOT NULL,
    settled_at        TIMESTAMPTZ NOT NULL
);
`

// PostgresService stores round history in a shared database.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService connects with the given DSN and bootstraps the schema.
func NewPostgresService(dsn string) (*PostgresService, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres DSN (set ARCHIVE_DSN)")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init round_history schema: %w", err)
	}

	return &PostgresService{db: db}, nil
}

func (s *PostgresService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresService) RecordRound(ctx context.Context, r RoundRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO round_history (
    round_id, winner, alpha_score, beta_score, move_count,
    total_bets, losing_closed, winning_closed, winning_unclaimed,
    betting_window_ms, game_duration_ms, settle_duration_ms, total_round_ms,
    settled_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (round_id) DO NOTHING
`,
		int64(r.RoundID), r.Winner, r.AlphaScore, r.BetaScore, int64(r.MoveCount),
		r.TotalBets, r.LosingClosed, r.WinningClosed, r.WinningUnclaimed,
		r.BettingWindowMs, r.GameDurationMs, r.SettleDurationMs, r.TotalRoundMs,
		r.SettledAt.UTC(),
	)
	return err
}

func (s *PostgresService) ListRecent(ctx context.Context, limit int) ([]RoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT round_id, winner, alpha_score, beta_score, move_count,
       total_bets, losing_closed, winning_closed, winning_unclaimed,
       betting_window_ms, game_duration_ms, settle_duration_ms, total_round_ms,
       settled_at
FROM round_history
ORDER BY round_id DESC
LIMIT $1
`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}
