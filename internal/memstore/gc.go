package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/llmclient"
)

// RunGC performs the count-threshold memory GC spec.md §4.10 describes,
// scheduled every 12 hours across all users. Satisfies
// scheduler.MemoryGCRunner.
func (s *Store) RunGC(ctx context.Context) error {
	users, err := s.listUsers()
	if err != nil {
		return fmt.Errorf("memstore: list users for gc: %w", err)
	}
	for _, userID := range users {
		if err := s.RunUserGC(ctx, userID); err != nil {
			s.logger.Error("memstore: gc failed for user", "user", userID, "error", err)
		}
	}
	return nil
}

// gcRow is one row pulled from the combined private+group oldest-first scan.
type gcRow struct {
	id     string
	table  string // "private_memories" or "group_memories"
	query  string
	reply  string
}

// RunUserGC runs the GC algorithm for a single user (manual per-user
// command per spec.md §4.10).
func (s *Store) RunUserGC(ctx context.Context, userID string) error {
	u, err := s.openUser(userID)
	if err != nil {
		return err
	}

	var count int
	if err := u.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM private_memories) + (SELECT COUNT(*) FROM group_memories)`,
	).Scan(&count); err != nil {
		return fmt.Errorf("memstore: count rows for %s: %w", userID, err)
	}

	cfg := s.gcCfg
	if cfg.DeleteAboveCount > 0 && count > cfg.DeleteAboveCount {
		n := int(math.Floor(float64(count) * cfg.DeleteFraction))
		if n > 0 {
			toDelete, err := oldestCombined(ctx, u.db, n)
			if err != nil {
				return fmt.Errorf("memstore: delete-outright pass for %s: %w", userID, err)
			}
			if err := s.deleteRows(ctx, u, toDelete); err != nil {
				return fmt.Errorf("memstore: delete-outright pass for %s: %w", userID, err)
			}
		}
	}

	if cfg.SummarizeAbove > 0 && count > cfg.SummarizeAbove {
		n := int(math.Floor(float64(count) * cfg.SummarizeFraction))
		if n > 0 {
			if err := s.summarizeOldest(ctx, u, userID, n, cfg); err != nil {
				return fmt.Errorf("memstore: summarize pass for %s: %w", userID, err)
			}
		}
	}

	return nil
}

// oldestCombined returns the n oldest rows across private_memories and
// group_memories, ordered ascending by created_at.
func oldestCombined(ctx context.Context, db *sql.DB, n int) ([]gcRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, src, query, reply, created_at FROM (
			SELECT id, 'private_memories' AS src, query, reply, created_at FROM private_memories
			UNION ALL
			SELECT id, 'group_memories' AS src, query, reply, created_at FROM group_memories
		) ORDER BY created_at ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gcRow
	for rows.Next() {
		var r gcRow
		var createdAt int64
		if err := rows.Scan(&r.id, &r.table, &r.query, &r.reply, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// deleteRows deletes the given rows outright (spec.md §4.10 "delete oldest
// 15% outright"). Vector index entries are left dangling unless
// RebuildIndexInline is set.
func (s *Store) deleteRows(ctx context.Context, u *userScope, toDelete []gcRow) error {
	for _, r := range toDelete {
		if _, err := u.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table), r.id); err != nil {
			return err
		}
		if s.gcCfg.RebuildIndexInline {
			idx := u.private
			if r.table == "group_memories" {
				idx = u.groupShadow
			}
			_ = idx.Delete(r.id)
		}
	}
	if len(toDelete) > 0 && !s.gcCfg.RebuildIndexInline {
		s.logger.Warn("memstore: gc deleted rows without updating vector index; rebuild recommended",
			"deleted", len(toDelete))
	}
	return nil
}

// summarizeOldest selects the n oldest remaining rows, batches them by
// BatchSize, asks the organizer model to summarize each batch into
// <=500 chars, inserts each summary as a new role="summary" row in
// private_memories, and deletes the batch's source rows.
func (s *Store) summarizeOldest(ctx context.Context, u *userScope, userID string, n int, cfg config.MemoryGCConfig) error {
	rows, err := oldestCombined(ctx, u.db, n)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 15
	}

	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]

		summary, err := s.summarizeBatch(ctx, batch)
		if err != nil {
			s.logger.Error("memstore: gc summarize batch failed", "user", userID, "error", err)
			continue
		}

		vec, err := s.embedder.Embed(ctx, summary)
		if err != nil {
			s.logger.Error("memstore: gc embed summary failed", "user", userID, "error", err)
			continue
		}
		normalize(vec)

		id := newSurrogateID()
		now := time.Now().UnixNano()
		if _, err := u.db.ExecContext(ctx,
			`INSERT INTO private_memories (id, role, content, query, reply, created_at) VALUES (?, 'summary', ?, '', ?, ?)`,
			id, summary, summary, now); err != nil {
			s.logger.Error("memstore: gc insert summary row failed", "user", userID, "error", err)
			continue
		}
		if err := u.private.Insert(id, vec); err != nil {
			s.logger.Error("memstore: gc insert summary vector failed", "user", userID, "error", err)
		}

		if err := s.deleteRows(ctx, u, batch); err != nil {
			s.logger.Error("memstore: gc delete summarized batch failed", "user", userID, "error", err)
		}
	}
	return nil
}

// summarizeBatch calls the organizer model to condense a batch of turns
// into a single <=500 character summary.
func (s *Store) summarizeBatch(ctx context.Context, batch []gcRow) (string, error) {
	var b strings.Builder
	for _, r := range batch {
		fmt.Fprintf(&b, "User问: %s\nBot答: %s\n", r.query, r.reply)
	}

	resp, err := s.llm.ChatComplete(ctx, config.RoleOrganizer, llmclient.ChatRequest{
		Messages: []llmclient.Message{
			{Role: "system", Content: "Summarize the following conversation turns into a single paragraph of no more than 500 characters, in Chinese, preserving names, facts, and commitments. Output only the summary."},
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("memstore: organizer summarize: %w", err)
	}
	out := resp.Content
	if len([]rune(out)) > 500 {
		runes := []rune(out)
		out = string(runes[:500])
	}
	return out, nil
}

// listUsers scans the private directory for known user scopes.
func (s *Store) listUsers() ([]string, error) {
	entries, err := os.ReadDir(s.privateDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var users []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".db") {
			continue
		}
		users = append(users, strings.TrimSuffix(filepath.Base(name), ".db"))
	}
	return users, nil
}
