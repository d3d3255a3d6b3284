package kgraph

import (
	"context"
	"fmt"
)

// Entities lists every node label for userID, for handing to an AI-driven
// cleanup pass or a heuristic scan.
func (s *Store) Entities(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity FROM kg_nodes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("kgraph: entities %s: %w", userID, err)
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

// MergeDuplicate migrates every edge incident to dup onto main, unions
// dup's aliases into main, and deletes dup (spec.md §4.3 AI-driven
// cleanup: "merge duplicates ... migrate incident edges, union aliases,
// delete self-loops").
func (s *Store) MergeDuplicate(ctx context.Context, userID, main, dup string) error {
	if main == dup {
		return nil
	}

	dupNode, err := s.GetNode(ctx, userID, dup)
	if err != nil {
		return err
	}
	if dupNode != nil {
		if err := s.UpsertNode(ctx, userID, main, dupNode.EntityType, dupNode.Aliases, dupNode.Properties); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE OR IGNORE kg_edges SET source = ? WHERE user_id = ? AND source = ?`, main, userID, dup); err != nil {
		return fmt.Errorf("kgraph: merge %s<-%s: migrate outgoing: %w", main, dup, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE OR IGNORE kg_edges SET target = ? WHERE user_id = ? AND target = ?`, main, userID, dup); err != nil {
		return fmt.Errorf("kgraph: merge %s<-%s: migrate incoming: %w", main, dup, err)
	}
	// Drop whatever couldn't be migrated because it collided with an
	// existing (main, ..., relation) edge, and drop self-loops created
	// by the migration.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kg_edges WHERE user_id = ? AND (source = ? OR target = ?)`, userID, dup, dup); err != nil {
		return fmt.Errorf("kgraph: merge %s<-%s: cleanup residual: %w", main, dup, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kg_edges WHERE user_id = ? AND source = target`, userID); err != nil {
		return fmt.Errorf("kgraph: merge %s<-%s: drop self-loops: %w", main, dup, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kg_nodes WHERE user_id = ? AND entity = ?`, userID, dup); err != nil {
		return fmt.Errorf("kgraph: merge %s<-%s: delete dup node: %w", main, dup, err)
	}

	return nil
}

// DeleteEntity removes entity and every edge touching it.
func (s *Store) DeleteEntity(ctx context.Context, userID, entity string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kg_edges WHERE user_id = ? AND (source = ? OR target = ?)`, userID, entity, entity); err != nil {
		return fmt.Errorf("kgraph: delete %s: edges: %w", entity, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kg_nodes WHERE user_id = ? AND entity = ?`, userID, entity); err != nil {
		return fmt.Errorf("kgraph: delete %s: node: %w", entity, err)
	}
	return nil
}

// ClearUser deletes every node and edge belonging to userID (spec.md §6
// admin "graph clear, per user").
func (s *Store) ClearUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kg_edges WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("kgraph: clear %s: edges: %w", userID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kg_nodes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("kgraph: clear %s: nodes: %w", userID, err)
	}
	return nil
}

// ClearAll deletes every node and edge in the graph (spec.md §6 admin
// "graph clear ... or all").
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kg_edges`); err != nil {
		return fmt.Errorf("kgraph: clear all: edges: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kg_nodes`); err != nil {
		return fmt.Errorf("kgraph: clear all: nodes: %w", err)
	}
	return nil
}

// UsersWithNodes lists distinct user ids that own at least one node,
// ordered and limited, for scheduler batching (spec.md §4.11).
func (s *Store) UsersWithNodes(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM kg_nodes ORDER BY user_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("kgraph: users_with_nodes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// OrphanEntities returns entities with no incident edges at all, useful
// for the heuristic low-connection pruning pass spec.md §4.3 describes.
func (s *Store) OrphanEntities(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.entity FROM kg_nodes n
		WHERE n.user_id = ?
		AND NOT EXISTS (SELECT 1 FROM kg_edges e WHERE e.user_id = n.user_id AND (e.source = n.entity OR e.target = n.entity))`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("kgraph: orphans %s: %w", userID, err)
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
