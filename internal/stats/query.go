package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CostRates maps a model-name substring classification to a RMB-per-token
// rate. original_source hardcoded two buckets ("r1" and "v3" DeepSeek
// SKUs); classifyRate still recognizes only those two keys, and every
// other model name is charged defaultCostRate. Entries added under other
// keys are not consulted.
var CostRates = map[string]float64{
	"r1": 16.0 / 1_000_000,
	"v3": 3.0 / 1_000_000,
}

// defaultCostRate is used for any model name that matches no known
// substring classification.
const defaultCostRate = 3.0 / 1_000_000

func classifyRate(modelName string) float64 {
	lower := strings.ToLower(modelName)
	switch {
	case strings.Contains(lower, "r1"):
		return CostRates["r1"]
	case strings.Contains(lower, "v3"), strings.Contains(lower, "deepseek-v"):
		return CostRates["v3"]
	default:
		return defaultCostRate
	}
}

// ModelUsage is one model's cumulative token/call counters.
type ModelUsage struct {
	ModelName    string
	InputTokens  int64
	OutputTokens int64
	Calls        int64
	Cost         float64
}

// GlobalStats is the all-time counters snapshot.
type GlobalStats struct {
	TotalUsers       int64
	TotalMsgReceived int64
	TotalMsgSent     int64
	UpdatedAt        string
	Models           []ModelUsage
	TotalCost        float64
}

// GetGlobalStats returns the all-time counters plus per-model cost.
func (s *Store) GetGlobalStats(ctx context.Context) (GlobalStats, error) {
	var g GlobalStats
	var updatedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT total_users, total_msg_received, total_msg_sent, updated_at FROM global_stats WHERE id = 1`,
	).Scan(&g.TotalUsers, &g.TotalMsgReceived, &g.TotalMsgSent, &updatedAt)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("stats: get_global_stats: %w", err)
	}
	g.UpdatedAt = updatedAt.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT model_name, input_tokens, output_tokens, calls FROM model_usage ORDER BY model_name`)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("stats: get_global_stats models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ModelUsage
		if err := rows.Scan(&m.ModelName, &m.InputTokens, &m.OutputTokens, &m.Calls); err != nil {
			return GlobalStats{}, fmt.Errorf("stats: get_global_stats scan: %w", err)
		}
		rate := classifyRate(m.ModelName)
		m.Cost = float64(m.InputTokens+m.OutputTokens) * rate
		g.TotalCost += m.Cost
		g.Models = append(g.Models, m)
	}
	return g, rows.Err()
}

// DailyStats is one day's combined message and token/cost rollup.
type DailyStats struct {
	Date         string
	MsgReceived  int64
	MsgSent      int64
	InputTokens  int64
	OutputTokens int64
	Calls        int64
	Cost         float64
}

// GetDailyStats returns the last n days of rollups, ascending by date.
func (s *Store) GetDailyStats(ctx context.Context, days int) ([]DailyStats, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days+1).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, msg_received, msg_sent FROM daily_stats
		WHERE date >= ? ORDER BY date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stats: get_daily_stats: %w", err)
	}
	defer rows.Close()

	byDate := make(map[string]*DailyStats)
	var order []string
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Date, &d.MsgReceived, &d.MsgSent); err != nil {
			return nil, fmt.Errorf("stats: get_daily_stats scan: %w", err)
		}
		byDate[d.Date] = &d
		order = append(order, d.Date)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modelRows, err := s.db.QueryContext(ctx, `
		SELECT date, model_name, input_tokens, output_tokens, calls FROM daily_model_usage
		WHERE date >= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stats: get_daily_stats models: %w", err)
	}
	defer modelRows.Close()

	for modelRows.Next() {
		var date, model string
		var in, out, calls int64
		if err := modelRows.Scan(&date, &model, &in, &out, &calls); err != nil {
			return nil, fmt.Errorf("stats: get_daily_stats models scan: %w", err)
		}
		d, ok := byDate[date]
		if !ok {
			d = &DailyStats{Date: date}
			byDate[date] = d
			order = append(order, date)
		}
		d.InputTokens += in
		d.OutputTokens += out
		d.Calls += calls
		d.Cost += float64(in+out) * classifyRate(model)
	}
	if err := modelRows.Err(); err != nil {
		return nil, err
	}

	result := make([]DailyStats, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, date := range order {
		if seen[date] {
			continue
		}
		seen[date] = true
		result = append(result, *byDate[date])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// GetTodayStats returns the current UTC day's rollup.
func (s *Store) GetTodayStats(ctx context.Context) (DailyStats, error) {
	days, err := s.GetDailyStats(ctx, 1)
	if err != nil {
		return DailyStats{}, err
	}
	today := todayStr()
	for _, d := range days {
		if d.Date == today {
			return d, nil
		}
	}
	return DailyStats{Date: today}, nil
}

// ActiveUser is one row of the recent-activity listing.
type ActiveUser struct {
	UserID   string
	LastSeen string
}

// GetRecentActiveUsers returns up to limit users ordered by most recent
// activity, for scheduler warm-up of short-term memory on process start.
func (s *Store) GetRecentActiveUsers(ctx context.Context, limit int) ([]ActiveUser, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, last_seen FROM user_stats ORDER BY last_seen DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("stats: get_recent_active_users: %w", err)
	}
	defer rows.Close()

	var out []ActiveUser
	for rows.Next() {
		var u ActiveUser
		if err := rows.Scan(&u.UserID, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("stats: get_recent_active_users scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
