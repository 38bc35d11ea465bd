// Package sqlite archives finished games in SQLite. Live sessions are never
// loaded back from it.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/quipdash/internal/game"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store persists finished game results.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// ArchivedGame is one stored game.
type ArchivedGame struct {
	ID          string
	Code        string
	FinishedAt  time.Time
	PlayerCount int
	Results     game.Results
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the archive at path and creates the schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveResults inserts one row for a finished game.
func (s *Store) SaveResults(ctx context.Context, code string, r game.Results) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("session code is required")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO game_results (id, session_code, finished_at, player_count, results_json)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(),
		code,
		toMillis(s.now()),
		len(r.Players),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert game results: %w", err)
	}
	return nil
}

// ListResults returns archived games for code, oldest first.
func (s *Store) ListResults(ctx context.Context, code string) ([]ArchivedGame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, session_code, finished_at, player_count, results_json
		 FROM game_results WHERE session_code = ? ORDER BY finished_at, rowid`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("query game results: %w", err)
	}
	defer rows.Close()

	var out []ArchivedGame
	for rows.Next() {
		var (
			g        ArchivedGame
			finished int64
			payload  string
		)
		if err := rows.Scan(&g.ID, &g.Code, &finished, &g.PlayerCount, &payload); err != nil {
			return nil, fmt.Errorf("scan game results: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &g.Results); err != nil {
			return nil, fmt.Errorf("decode game results: %w", err)
		}
		g.FinishedAt = fromMillis(finished)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game results: %w", err)
	}
	return out, nil
}
