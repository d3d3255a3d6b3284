// Package kgraph implements the per-user knowledge graph (spec.md §4.3):
// SQLite-backed nodes keyed by (user, entity) carrying an alias list, and
// edges keyed by (user, source, target, relation) carrying a weight that
// increments on repeated insertion.
//
// The key scheme is grounded on the teacher's pkg/graph.KVGraph (forward
// and reverse indexes per entity), ported onto relational tables because
// weight increments and alias unions are native SQL upserts — the shape
// original_source/src/core/RAGM/graph_storage.py uses for the same data.
package kgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/kurame123/confidant/internal/sqlitedriver"
)

// WeightIncrement is added to an edge's weight on every repeated insert.
const WeightIncrement = 0.1

// Node is one entity in a user's subgraph.
type Node struct {
	UserID     string
	Entity     string
	EntityType string
	Aliases    []string
	Properties map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Edge is a directed, typed relation between two of a user's entities.
type Edge struct {
	UserID    string
	Source    string
	Target    string
	Relation  string
	Weight    float64
	TimeRef   string
	Timestamp time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the SQLite-backed knowledge graph.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the knowledge graph database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("kgraph: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS kg_nodes (
	user_id TEXT NOT NULL,
	entity TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	aliases_json TEXT NOT NULL DEFAULT '[]',
	properties_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, entity)
);
CREATE TABLE IF NOT EXISTS kg_edges (
	user_id TEXT NOT NULL,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	relation TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	time_ref TEXT NOT NULL DEFAULT '',
	ts TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, source, target, relation)
);
CREATE INDEX IF NOT EXISTS kg_edges_by_source ON kg_edges (user_id, source);
CREATE INDEX IF NOT EXISTS kg_edges_by_target ON kg_edges (user_id, target);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kgraph: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// UpsertNode creates entity if absent, or merges aliases and properties
// into the existing node otherwise (spec.md §4.3: "add-node merges
// aliases into the properties list").
func (s *Store) UpsertNode(ctx context.Context, userID, entity, entityType string, aliases []string, props map[string]string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var existingAliasesJSON, existingPropsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT aliases_json, properties_json FROM kg_nodes WHERE user_id = ? AND entity = ?`,
		userID, entity).Scan(&existingAliasesJSON, &existingPropsJSON)

	switch err {
	case sql.ErrNoRows:
		aliasJSON, err := json.Marshal(dedupe(aliases))
		if err != nil {
			return err
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO kg_nodes (user_id, entity, entity_type, aliases_json, properties_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, entity, entityType, string(aliasJSON), string(propsJSON), now, now)
		if err != nil {
			return fmt.Errorf("kgraph: insert node %s/%s: %w", userID, entity, err)
		}
		return nil
	case nil:
		var existingAliases []string
		_ = json.Unmarshal([]byte(existingAliasesJSON), &existingAliases)
		existingProps := map[string]string{}
		_ = json.Unmarshal([]byte(existingPropsJSON), &existingProps)

		merged := dedupe(append(existingAliases, aliases...))
		for k, v := range props {
			existingProps[k] = v
		}

		aliasJSON, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		propsJSON, err := json.Marshal(existingProps)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE kg_nodes SET aliases_json = ?, properties_json = ?, updated_at = ?
			WHERE user_id = ? AND entity = ?`,
			string(aliasJSON), string(propsJSON), now, userID, entity)
		if err != nil {
			return fmt.Errorf("kgraph: merge node %s/%s: %w", userID, entity, err)
		}
		return nil
	default:
		return fmt.Errorf("kgraph: lookup node %s/%s: %w", userID, entity, err)
	}
}

// UpsertEdge creates (source, target, relation) if absent, or increments
// its weight by WeightIncrement otherwise. timeRef and ts, if non-empty,
// overwrite the stored values (the most recent mention wins).
func (s *Store) UpsertEdge(ctx context.Context, userID, source, target, relation, timeRef string, ts time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tsStr := ""
	if !ts.IsZero() {
		tsStr = ts.UTC().Format(time.RFC3339)
	}

	var weight float64
	err := s.db.QueryRowContext(ctx,
		`SELECT weight FROM kg_edges WHERE user_id = ? AND source = ? AND target = ? AND relation = ?`,
		userID, source, target, relation).Scan(&weight)

	switch err {
	case sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO kg_edges (user_id, source, target, relation, weight, time_ref, ts, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1.0, ?, ?, ?, ?)`,
			userID, source, target, relation, timeRef, tsStr, now, now)
		if err != nil {
			return fmt.Errorf("kgraph: insert edge %s/%s->%s: %w", userID, source, target, err)
		}
		return nil
	case nil:
		query := `UPDATE kg_edges SET weight = weight + ?, updated_at = ?`
		args := []any{WeightIncrement, now}
		if timeRef != "" {
			query += `, time_ref = ?`
			args = append(args, timeRef)
		}
		if tsStr != "" {
			query += `, ts = ?`
			args = append(args, tsStr)
		}
		query += ` WHERE user_id = ? AND source = ? AND target = ? AND relation = ?`
		args = append(args, userID, source, target, relation)

		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("kgraph: increment edge %s/%s->%s: %w", userID, source, target, err)
		}
		return nil
	default:
		return fmt.Errorf("kgraph: lookup edge %s/%s->%s: %w", userID, source, target, err)
	}
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// GetNode returns userID's node for entity, or (nil, nil) if absent.
func (s *Store) GetNode(ctx context.Context, userID, entity string) (*Node, error) {
	var n Node
	var aliasesJSON, propsJSON, createdAt, updatedAt string
	n.UserID, n.Entity = userID, entity

	err := s.db.QueryRowContext(ctx, `
		SELECT entity_type, aliases_json, properties_json, created_at, updated_at
		FROM kg_nodes WHERE user_id = ? AND entity = ?`, userID, entity).
		Scan(&n.EntityType, &aliasesJSON, &propsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kgraph: get node %s/%s: %w", userID, entity, err)
	}

	_ = json.Unmarshal([]byte(aliasesJSON), &n.Aliases)
	_ = json.Unmarshal([]byte(propsJSON), &n.Properties)
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &n, nil
}

// Edges returns every edge touching entity (as source or target).
func (s *Store) Edges(ctx context.Context, userID, entity string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, relation, weight, time_ref, ts, created_at, updated_at
		FROM kg_edges WHERE user_id = ? AND (source = ? OR target = ?)
		ORDER BY weight DESC`, userID, entity, entity)
	if err != nil {
		return nil, fmt.Errorf("kgraph: edges %s/%s: %w", userID, entity, err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var ts, createdAt, updatedAt string
		e.UserID = userID
		if err := rows.Scan(&e.Source, &e.Target, &e.Relation, &e.Weight, &e.TimeRef, &ts, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if ts != "" {
			e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
