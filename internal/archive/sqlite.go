package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS round_history (
    round_id          INTEGER PRIMARY KEY,
    winner            TEXT    NOT NULL,
    alpha_score       INTEGER NOT NULL,
    beta_score        INTEGER NOT NULL,
    move_count        INTEGER NOT NULL,
    total_bets        INTEGER NOT NULL,
    losing_closed     INTEGER NOT NULL,
    winning_closed    INTEGER NOT NULL,
    winning_unclaimed INTEGER NOT NULL,
    betting_window_ms INTEGER NOT NULL,
    game_duration_ms  INTEGER NOT NULL,
    settle_duration_ms INTEGER NOT NULL,
    total_round_ms    INTEGER NOT NULL,
    settled_at        TIMESTAMP NOT NULL
);
`

// SQLiteService stores round history in a local database file.
type SQLiteService struct {
	db *sql.DB
}

// NewSQLiteService opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func NewSQLiteService(path string) (*SQLiteService, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty sqlite database path (set ARCHIVE_DSN)")
	}
	if path != ":memory:" {
		parent := filepath.Dir(path)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init round_history schema: %w", err)
	}

	return &SQLiteService{db: db}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) RecordRound(ctx context.Context, r RoundRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO round_history (
    round_id, winner, alpha_score, beta_score, move_count,
    total_bets, losing_closed, winning_closed, winning_unclaimed,
    betting_window_ms, game_duration_ms, settle_duration_ms, total_round_ms,
    settled_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (round_id) DO NOTHING
`,
		r.RoundID, r.Winner, r.AlphaScore, r.BetaScore, r.MoveCount,
		r.TotalBets, r.LosingClosed, r.WinningClosed, r.WinningUnclaimed,
		r.BettingWindowMs, r.GameDurationMs, r.SettleDurationMs, r.TotalRoundMs,
		r.SettledAt.UTC(),
	)
	return err
}

func (s *SQLiteService) ListRecent(ctx context.Context, limit int) ([]RoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT round_id, winner, alpha_score, beta_score, move_count,
       total_bets, losing_closed, winning_closed, winning_unclaimed,
       betting_window_ms, game_duration_ms, settle_duration_ms, total_round_ms,
       settled_at
FROM round_history
ORDER BY round_id DESC
LIMIT ?
`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]RoundRecord, error) {
	records := []RoundRecord{}
	for rows.Next() {
		var r RoundRecord
		if err := rows.Scan(
			&r.RoundID, &r.Winner, &r.AlphaScore, &r.BetaScore, &r.MoveCount,
			&r.TotalBets, &r.LosingClosed, &r.WinningClosed, &r.WinningUnclaimed,
			&r.BettingWindowMs, &r.GameDurationMs, &r.SettleDurationMs, &r.TotalRoundMs,
			&r.SettledAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
