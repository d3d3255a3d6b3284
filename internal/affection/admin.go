package affection

import (
	"context"
	"database/sql"
	"fmt"
)

// Overview is the aggregate relationship-state summary (spec.md §6).
type Overview struct {
	TotalUsers  int
	AvgScore    float64
	LevelCounts map[int]int
}

// GetOverview aggregates every stored user's score into a display summary.
func (s *Store) GetOverview(ctx context.Context) (Overview, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_affection`).Scan(&total); err != nil {
		return Overview{}, fmt.Errorf("affection: overview count: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(affection_score) FROM user_affection`).Scan(&avg); err != nil {
		return Overview{}, fmt.Errorf("affection: overview avg: %w", err)
	}

	counts := make(map[int]int, 16)
	for level := -2; level <= 13; level++ {
		var c int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM user_affection WHERE last_level = ?`, level).Scan(&c); err != nil {
			return Overview{}, fmt.Errorf("affection: overview level %d: %w", level, err)
		}
		counts[level] = c
	}

	avgScore := 0.0
	if avg.Valid {
		avgScore = round2(avg.Float64)
	}
	return Overview{TotalUsers: total, AvgScore: avgScore, LevelCounts: counts}, nil
}

// ListItem is one row of a paginated user listing.
type ListItem struct {
	UserID             string
	Score              float64
	Level              int
	LevelName          string
	TotalInteractions  int
	LastInteractAt     string
}

// ListUsers returns a page of users, optionally filtered by level and a
// user-id substring, ordered by score descending.
func (s *Store) ListUsers(ctx context.Context, page, pageSize int, level *int, keyword string) ([]ListItem, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where := ""
	args := []any{}
	var clauses []string
	if level != nil {
		clauses = append(clauses, "last_level = ?")
		args = append(args, *level)
	}
	if keyword != "" {
		clauses = append(clauses, "user_id LIKE ?")
		args = append(args, "%"+keyword+"%")
	}
	if len(clauses) > 0 {
		where = "WHERE " + clauses[0]
		for _, c := range clauses[1:] {
			where += " AND " + c
		}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_affection `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("affection: list count: %w", err)
	}

	offset := (page - 1) * pageSize
	queryArgs := append(append([]any{}, args...), pageSize, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, affection_score, last_level, total_interactions, last_interact_at
		FROM user_affection `+where+`
		ORDER BY affection_score DESC
		LIMIT ? OFFSET ?`, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("affection: list query: %w", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var it ListItem
		var lastInteract sql.NullString
		if err := rows.Scan(&it.UserID, &it.Score, &it.Level, &it.TotalInteractions, &lastInteract); err != nil {
			return nil, 0, fmt.Errorf("affection: list scan: %w", err)
		}
		it.Score = round2(it.Score)
		it.LevelName = LevelName(it.Level)
		it.LastInteractAt = lastInteract.String
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// AdminSetScore overwrites userID's score (clamped to [0, 13]), used by the
// admin surface to manually correct a relationship state.
func (s *Store) AdminSetScore(ctx context.Context, userID string, newScore float64) (Info, error) {
	newScore = clamp(newScore, 0.0, 13.0)
	newLevel := ScoreToLevel(newScore)

	res, err := s.db.ExecContext(ctx,
		`UPDATE user_affection SET affection_score = ?, last_level = ? WHERE user_id = ?`,
		newScore, newLevel, userID)
	if err != nil {
		return Info{}, fmt.Errorf("affection: admin set score %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Info{}, fmt.Errorf("affection: admin set score: user %s not found", userID)
	}
	return s.GetInfo(ctx, userID)
}
