// Package stats implements the global/per-day/per-model usage counters
// (spec.md §3 "Stats Aggregates"): total users and messages, per-model
// token/call counts, and day-partitioned rollups for dashboards.
//
// Grounded on original_source/src/services/stats_service.py, generalized
// from that service's two hardcoded model buckets (r1/v3) to an arbitrary
// model-name key, since this backend's model roles are operator-configured
// rather than fixed to one provider's two SKUs.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/kurame123/confidant/internal/sqlitedriver"
)

// Store is a SQLite-backed usage statistics recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the stats database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("stats: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS global_stats (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	total_users INTEGER NOT NULL DEFAULT 0,
	total_msg_received INTEGER NOT NULL DEFAULT 0,
	total_msg_sent INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT
);
INSERT OR IGNORE INTO global_stats (id) VALUES (1);

CREATE TABLE IF NOT EXISTS user_stats (
	user_id TEXT PRIMARY KEY,
	first_seen TEXT,
	last_seen TEXT,
	msg_received INTEGER NOT NULL DEFAULT 0,
	msg_sent INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS daily_stats (
	date TEXT PRIMARY KEY,
	msg_received INTEGER NOT NULL DEFAULT 0,
	msg_sent INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS model_usage (
	model_name TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	calls INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (model_name)
);

CREATE TABLE IF NOT EXISTS daily_model_usage (
	date TEXT NOT NULL,
	model_name TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	calls INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, model_name)
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func todayStr() string { return time.Now().UTC().Format("2006-01-02") }

// RecordIncoming records one inbound user message, creating the user's
// row on first contact.
func (s *Store) RecordIncoming(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	today := todayStr()

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_stats WHERE user_id = ?)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("stats: record_incoming lookup %s: %w", userID, err)
	}

	if exists {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE user_stats SET last_seen = ?, msg_received = msg_received + 1 WHERE user_id = ?`,
			now, userID); err != nil {
			return fmt.Errorf("stats: record_incoming update %s: %w", userID, err)
		}
	} else {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO user_stats (user_id, first_seen, last_seen, msg_received) VALUES (?, ?, ?, 1)`,
			userID, now, now); err != nil {
			return fmt.Errorf("stats: record_incoming insert %s: %w", userID, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE global_stats SET total_users = total_users + 1 WHERE id = 1`); err != nil {
			return fmt.Errorf("stats: record_incoming total_users: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, msg_received) VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET msg_received = msg_received + 1`, today); err != nil {
		return fmt.Errorf("stats: record_incoming daily: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE global_stats SET total_msg_received = total_msg_received + 1, updated_at = ? WHERE id = 1`, now)
	if err != nil {
		return fmt.Errorf("stats: record_incoming global: %w", err)
	}
	return nil
}

// RecordOutgoing records one outbound reply for userID.
func (s *Store) RecordOutgoing(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	today := todayStr()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_stats SET msg_sent = msg_sent + 1 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("stats: record_outgoing user %s: %w", userID, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, msg_sent) VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET msg_sent = msg_sent + 1`, today); err != nil {
		return fmt.Errorf("stats: record_outgoing daily: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE global_stats SET total_msg_sent = total_msg_sent + 1, updated_at = ? WHERE id = 1`, now)
	if err != nil {
		return fmt.Errorf("stats: record_outgoing global: %w", err)
	}
	return nil
}

// RecordLLMUsage records one model call's token usage, both globally and
// in today's per-model rollup.
func (s *Store) RecordLLMUsage(ctx context.Context, modelName string, inputTokens, outputTokens int) error {
	today := todayStr()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO model_usage (model_name, input_tokens, output_tokens, calls)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(model_name) DO UPDATE SET
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			calls = calls + 1`,
		modelName, inputTokens, outputTokens, inputTokens, outputTokens); err != nil {
		return fmt.Errorf("stats: record_llm_usage model_usage %s: %w", modelName, err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_model_usage (date, model_name, input_tokens, output_tokens, calls)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(date, model_name) DO UPDATE SET
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			calls = calls + 1`,
		today, modelName, inputTokens, outputTokens, inputTokens, outputTokens); err != nil {
		return fmt.Errorf("stats: record_llm_usage daily_model_usage %s: %w", modelName, err)
	}
	return nil
}
