// Package blacklist implements the temporary per-user ban store the
// injection guard (spec.md §4.5) drops offenders into: a SQLite-backed
// expiring ban with hit-count tracking and a full admin surface.
//
// Grounded on original_source/src/core/temp_blacklist.py.
package blacklist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/kurame123/confidant/internal/sqlitedriver"
)

// DefaultBlockedBy identifies bans placed automatically by the guard,
// as opposed to an admin-issued ban.
const DefaultBlockedBy = "auto_guard"

// Ban is one user's ban record.
type Ban struct {
	UserID    string
	ExpiresAt time.Time
	Reason    string
	BlockedAt time.Time
	BlockedBy string
	HitCount  int
}

// RemainingMinutes returns how long the ban has left, floored to whole
// minutes; zero or negative once expired.
func (b Ban) RemainingMinutes() int64 {
	return int64(time.Until(b.ExpiresAt) / time.Minute)
}

// Store is a SQLite-backed temporary blacklist.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the blacklist database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("blacklist: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS temp_blacklist (
	user_id TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL,
	reason TEXT,
	blocked_at INTEGER NOT NULL,
	blocked_by TEXT DEFAULT 'auto_guard',
	hit_count INTEGER DEFAULT 1
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blacklist: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ban places userID under a ban for minutes, extending hit_count if the
// user was already banned. by identifies the operator (blacklist.DefaultBlockedBy
// for automatic guard bans, an admin identifier otherwise).
func (s *Store) Ban(ctx context.Context, userID string, minutes int, reason, by string) (Ban, error) {
	if by == "" {
		by = DefaultBlockedBy
	}
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(minutes) * time.Minute)

	var hitCount int
	err := s.db.QueryRowContext(ctx, `SELECT hit_count FROM temp_blacklist WHERE user_id = ?`, userID).Scan(&hitCount)
	switch err {
	case nil:
		hitCount++
		_, err = s.db.ExecContext(ctx, `
			UPDATE temp_blacklist
			SET expires_at = ?, reason = ?, blocked_at = ?, blocked_by = ?, hit_count = ?
			WHERE user_id = ?`,
			expiresAt.Unix(), reason, now.Unix(), by, hitCount, userID)
	case sql.ErrNoRows:
		hitCount = 1
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO temp_blacklist (user_id, expires_at, reason, blocked_at, blocked_by, hit_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, expiresAt.Unix(), reason, now.Unix(), by, hitCount)
	default:
		return Ban{}, fmt.Errorf("blacklist: ban %s: %w", userID, err)
	}
	if err != nil {
		return Ban{}, fmt.Errorf("blacklist: ban %s: %w", userID, err)
	}

	return Ban{
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		BlockedAt: now,
		BlockedBy: by,
		HitCount:  hitCount,
	}, nil
}

// Unban removes userID's ban record, reporting whether one existed.
func (s *Store) Unban(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM temp_blacklist WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("blacklist: unban %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsBlocked reports whether userID is currently banned, lazily deleting
// the record if it has expired.
func (s *Store) IsBlocked(ctx context.Context, userID string) (bool, error) {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM temp_blacklist WHERE user_id = ?`, userID).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blacklist: is_blocked %s: %w", userID, err)
	}

	if time.Now().Unix() >= expiresAt {
		if _, err := s.Unban(ctx, userID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// GetInfo returns userID's ban record, or (Ban{}, false) if not banned or
// the record has just expired (in which case it is lazily deleted).
func (s *Store) GetInfo(ctx context.Context, userID string) (Ban, bool, error) {
	var expiresAt, blockedAt int64
	var reason, blockedBy string
	var hitCount int
	row := s.db.QueryRowContext(ctx, `
		SELECT expires_at, reason, blocked_at, blocked_by, hit_count
		FROM temp_blacklist WHERE user_id = ?`, userID)
	err := row.Scan(&expiresAt, &reason, &blockedAt, &blockedBy, &hitCount)
	if err == sql.ErrNoRows {
		return Ban{}, false, nil
	}
	if err != nil {
		return Ban{}, false, fmt.Errorf("blacklist: get_info %s: %w", userID, err)
	}

	if time.Now().Unix() >= expiresAt {
		if _, err := s.Unban(ctx, userID); err != nil {
			return Ban{}, false, err
		}
		return Ban{}, false, nil
	}

	return Ban{
		UserID:    userID,
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
		Reason:    reason,
		BlockedAt: time.Unix(blockedAt, 0).UTC(),
		BlockedBy: blockedBy,
		HitCount:  hitCount,
	}, true, nil
}

// Extend adds minutes to userID's existing ban, reporting (Ban{}, false)
// if the user is not currently banned.
func (s *Store) Extend(ctx context.Context, userID string, minutes int) (Ban, bool, error) {
	info, ok, err := s.GetInfo(ctx, userID)
	if err != nil || !ok {
		return Ban{}, false, err
	}

	newExpiresAt := info.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE temp_blacklist SET expires_at = ? WHERE user_id = ?`, newExpiresAt.Unix(), userID); err != nil {
		return Ban{}, false, fmt.Errorf("blacklist: extend %s: %w", userID, err)
	}
	return s.GetInfo(ctx, userID)
}

// List returns every non-expired ban, most recently blocked first, for
// the "/banlist" CLI command and the admin HTTP surface.
func (s *Store) List(ctx context.Context) ([]Ban, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, expires_at, reason, blocked_at, blocked_by, hit_count
		FROM temp_blacklist WHERE expires_at >= ? ORDER BY blocked_at DESC`, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("blacklist: list: %w", err)
	}
	defer rows.Close()

	var out []Ban
	for rows.Next() {
		var b Ban
		var expiresAt, blockedAt int64
		if err := rows.Scan(&b.UserID, &expiresAt, &b.Reason, &blockedAt, &b.BlockedBy, &b.HitCount); err != nil {
			return nil, fmt.Errorf("blacklist: list scan: %w", err)
		}
		b.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		b.BlockedAt = time.Unix(blockedAt, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// CleanupExpired deletes every ban whose expiry has passed, returning the
// count removed (spec.md §4.9 scheduled maintenance).
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM temp_blacklist WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("blacklist: cleanup_expired: %w", err)
	}
	return res.RowsAffected()
}
