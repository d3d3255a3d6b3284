package kgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMaxHops bounds neighbor traversal depth (spec.md §4.3: "recursive
// depth-bounded (default 2)").
const DefaultMaxHops = 2

// MaxNeighborsPerNode caps fan-out per node during traversal.
const MaxNeighborsPerNode = 10

// Neighbors performs a depth-bounded breadth-first expansion from seeds
// following outgoing edges ordered by weight descending, capped at
// MaxNeighborsPerNode per node and memoized against revisits.
func (s *Store) Neighbors(ctx context.Context, userID string, seeds []string, hops int) ([]Edge, error) {
	if hops <= 0 {
		hops = DefaultMaxHops
	}

	visited := make(map[string]bool, len(seeds))
	frontier := append([]string{}, seeds...)
	for _, seed := range seeds {
		visited[seed] = true
	}

	var collected []Edge
	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			rows, err := s.db.QueryContext(ctx, `
				SELECT source, target, relation, weight, time_ref, ts, created_at, updated_at
				FROM kg_edges WHERE user_id = ? AND source = ?
				ORDER BY weight DESC LIMIT ?`, userID, node, MaxNeighborsPerNode)
			if err != nil {
				return nil, fmt.Errorf("kgraph: neighbors %s/%s: %w", userID, node, err)
			}
			for rows.Next() {
				var e Edge
				var ts, createdAt, updatedAt string
				e.UserID = userID
				if err := rows.Scan(&e.Source, &e.Target, &e.Relation, &e.Weight, &e.TimeRef, &ts, &createdAt, &updatedAt); err != nil {
					rows.Close()
					return nil, err
				}
				if ts != "" {
					e.Timestamp, _ = time.Parse(time.RFC3339, ts)
				}
				e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
				e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
				collected = append(collected, e)
				if !visited[e.Target] {
					visited[e.Target] = true
					next = append(next, e.Target)
				}
			}
			rows.Close()
		}
		frontier = next
	}
	return collected, nil
}

// findByKeyword returns entities whose name matches kw directly, or whose
// aliases_json contains kw as a substring.
func (s *Store) findByKeyword(ctx context.Context, userID, kw string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity FROM kg_nodes
		WHERE user_id = ? AND (entity = ? OR aliases_json LIKE ?)`,
		userID, kw, "%"+kw+"%")
	if err != nil {
		return nil, fmt.Errorf("kgraph: find keyword %q: %w", kw, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// timeWindows maps a coarse time reference to a lookback window, matching
// the fixed mapping spec.md §4.3 describes (e.g. "recently" → 7 days).
var timeWindows = map[string]time.Duration{
	"today":      24 * time.Hour,
	"今天":         24 * time.Hour,
	"yesterday":  48 * time.Hour,
	"昨天":         48 * time.Hour,
	"recently":   7 * 24 * time.Hour,
	"最近":         7 * 24 * time.Hour,
	"this week":  7 * 24 * time.Hour,
	"this month": 30 * 24 * time.Hour,
	"最近一个月":      30 * 24 * time.Hour,
}

// Retrieve implements spec.md §4.3's retrieve(user, keywords, timeRef):
// for each keyword, find matching entities, expand 2-hop neighbors,
// optionally filter/fall back by recency, dedupe, and render as
// natural-language clauses.
func (s *Store) Retrieve(ctx context.Context, userID string, keywords []string, timeRef string) (string, error) {
	seen := make(map[string]bool)
	var seeds []string
	for _, kw := range keywords {
		matches, err := s.findByKeyword(ctx, userID, kw)
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				seeds = append(seeds, m)
			}
		}
	}
	if len(seeds) == 0 {
		return "", nil
	}

	edges, err := s.Neighbors(ctx, userID, seeds, DefaultMaxHops)
	if err != nil {
		return "", err
	}

	if window, ok := timeWindows[strings.ToLower(timeRef)]; ok {
		cutoff := time.Now().Add(-window)
		var filtered []Edge
		for _, e := range edges {
			if !e.Timestamp.IsZero() && e.Timestamp.After(cutoff) {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) > 0 {
			edges = filtered
		} else {
			sort.Slice(edges, func(i, j int) bool { return edges[i].Timestamp.After(edges[j].Timestamp) })
			if len(edges) > 5 {
				edges = edges[:5]
			}
		}
	}

	type key struct{ src, rel, dst string }
	dedup := make(map[key]bool, len(edges))
	var clauses []string
	for _, e := range edges {
		k := key{e.Source, e.Relation, e.Target}
		if dedup[k] {
			continue
		}
		dedup[k] = true
		clauses = append(clauses, fmt.Sprintf("%s %s %s", e.Source, e.Relation, e.Target))
	}
	return strings.Join(clauses, "; "), nil
}
