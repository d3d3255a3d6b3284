package kv

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	_ "github.com/kurame123/confidant/internal/sqlitedriver"
)

// SQLite is a Store implementation backed by a SQLite database, used for
// every store spec.md calls out as SQLite-persisted (knowledge graph
// metadata, vector id-maps, long-term memory row index). It keeps the same
// hierarchical-key contract as [Memory] and [Badger] so callers never see
// the difference.
type SQLite struct {
	db        *sql.DB
	opts      *Options
	tableName string
}

// SQLiteOptions configures the SQLite store.
type SQLiteOptions struct {
	// Options is the common kv options (separator, etc.).
	Options *Options

	// Path is the database file path. Required. Use ":memory:" for tests.
	Path string

	// Table is the backing table name. Defaults to "kv_entries".
	Table string
}

// OpenSQLite opens (creating if necessary) a SQLite-backed store.
func OpenSQLite(opts SQLiteOptions) (*SQLite, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("kv: SQLiteOptions.Path is required")
	}
	table := opts.Table
	if table == "" {
		table = "kv_entries"
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite %s: %w", opts.Path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer, avoid SQLITE_BUSY under concurrent use

	if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		k TEXT PRIMARY KEY,
		v BLOB NOT NULL
	)`, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create table: %w", err)
	}

	return &SQLite{db: db, opts: opts.Options, tableName: table}, nil
}

func (s *SQLite) Get(ctx context.Context, key Key) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT v FROM %s WHERE k = ?", s.tableName),
		string(s.opts.encode(key)))

	var v []byte
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, key Key, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", s.tableName),
		string(s.opts.encode(key)), value)
	if err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE k = ?", s.tableName),
		string(s.opts.encode(key)))
	if err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		encoded := s.opts.encode(prefix)
		// Keys under a non-empty prefix start with prefix + separator, so
		// "a:b" does not match "a:bc"; LIKE with an escaped '%'/'_' keeps
		// the prefix scan exact for keys containing those characters.
		if len(encoded) > 0 {
			encoded = append(encoded, s.opts.sep())
		}
		like := strings.NewReplacer("%", "\\%", "_", "\\_").Replace(string(encoded)) + "%"

		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf("SELECT k, v FROM %s WHERE k LIKE ? ESCAPE '\\' ORDER BY k", s.tableName),
			like)
		if err != nil {
			yield(Entry{}, fmt.Errorf("kv: list %s: %w", prefix, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var k string
			var v []byte
			if err := rows.Scan(&k, &v); err != nil {
				yield(Entry{}, fmt.Errorf("kv: list %s: %w", prefix, err))
				return
			}
			if !yield(Entry{Key: s.opts.decode([]byte(k)), Value: v}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("kv: list %s: %w", prefix, err))
		}
	}
}

func (s *SQLite) BatchSet(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv: batch set: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", s.tableName))
	if err != nil {
		return fmt.Errorf("kv: batch set: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, string(s.opts.encode(e.Key)), e.Value); err != nil {
			return fmt.Errorf("kv: batch set %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) BatchDelete(ctx context.Context, keys []Key) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv: batch delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE k = ?", s.tableName))
	if err != nil {
		return fmt.Errorf("kv: batch delete: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, string(s.opts.encode(k))); err != nil {
			return fmt.Errorf("kv: batch delete %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
