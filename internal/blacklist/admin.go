package blacklist

import (
	"context"
	"fmt"
	"time"
)

// ListActiveResult is a paginated view of currently active bans.
type ListActiveResult struct {
	Records    []Ban
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// ListActive returns a page of bans that have not yet expired, most
// recently expiring first.
func (s *Store) ListActive(ctx context.Context, page, pageSize int) (ListActiveResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	now := time.Now().Unix()
	offset := (page - 1) * pageSize

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM temp_blacklist WHERE expires_at > ?`, now).Scan(&total); err != nil {
		return ListActiveResult{}, fmt.Errorf("blacklist: list_active count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, expires_at, reason, blocked_at, blocked_by, hit_count
		FROM temp_blacklist
		WHERE expires_at > ?
		ORDER BY expires_at DESC
		LIMIT ? OFFSET ?`, now, pageSize, offset)
	if err != nil {
		return ListActiveResult{}, fmt.Errorf("blacklist: list_active query: %w", err)
	}
	defer rows.Close()

	var records []Ban
	for rows.Next() {
		var b Ban
		var expiresAt, blockedAt int64
		if err := rows.Scan(&b.UserID, &expiresAt, &b.Reason, &blockedAt, &b.BlockedBy, &b.HitCount); err != nil {
			return ListActiveResult{}, fmt.Errorf("blacklist: list_active scan: %w", err)
		}
		b.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		b.BlockedAt = time.Unix(blockedAt, 0).UTC()
		records = append(records, b)
	}
	if err := rows.Err(); err != nil {
		return ListActiveResult{}, err
	}

	return ListActiveResult{
		Records:    records,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// ReasonCount is one entry of the "top reasons" statistic.
type ReasonCount struct {
	Reason string
	Count  int
}

// OffenderCount is one entry of the "top offenders" statistic.
type OffenderCount struct {
	UserID   string
	HitCount int
}

// Stats is the aggregate blacklist statistic set (spec.md §6).
type Stats struct {
	ActiveCount  int
	TodayCount   int
	TopReasons   []ReasonCount
	TopOffenders []OffenderCount
}

// GetStats computes the current blacklist statistics.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	now := time.Now().Unix()
	todayStart := now - now%86400

	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM temp_blacklist WHERE expires_at > ?`, now).Scan(&st.ActiveCount); err != nil {
		return Stats{}, fmt.Errorf("blacklist: stats active: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM temp_blacklist WHERE blocked_at >= ?`, todayStart).Scan(&st.TodayCount); err != nil {
		return Stats{}, fmt.Errorf("blacklist: stats today: %w", err)
	}

	reasonRows, err := s.db.QueryContext(ctx, `
		SELECT reason, COUNT(*) AS cnt FROM temp_blacklist
		GROUP BY reason ORDER BY cnt DESC LIMIT 5`)
	if err != nil {
		return Stats{}, fmt.Errorf("blacklist: stats top_reasons: %w", err)
	}
	defer reasonRows.Close()
	for reasonRows.Next() {
		var rc ReasonCount
		if err := reasonRows.Scan(&rc.Reason, &rc.Count); err != nil {
			return Stats{}, err
		}
		st.TopReasons = append(st.TopReasons, rc)
	}
	if err := reasonRows.Err(); err != nil {
		return Stats{}, err
	}

	offenderRows, err := s.db.QueryContext(ctx, `
		SELECT user_id, hit_count FROM temp_blacklist
		WHERE expires_at > ?
		ORDER BY hit_count DESC LIMIT 5`, now)
	if err != nil {
		return Stats{}, fmt.Errorf("blacklist: stats top_offenders: %w", err)
	}
	defer offenderRows.Close()
	for offenderRows.Next() {
		var oc OffenderCount
		if err := offenderRows.Scan(&oc.UserID, &oc.HitCount); err != nil {
			return Stats{}, err
		}
		st.TopOffenders = append(st.TopOffenders, oc)
	}
	return st, offenderRows.Err()
}
