package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/kurame123/confidant/internal/vecstore"
)

// RebuildUser re-embeds every row in a user's private_memories and
// group_memories tables and rebuilds both vector indices from scratch
// (spec.md §4.2 "Rebuild"). Used manually after GC to repair the
// dangling id-map entries deletion leaves behind.
func (s *Store) RebuildUser(ctx context.Context, userID string) error {
	u, err := s.openUser(userID)
	if err != nil {
		return err
	}

	newPrivate := s.newIndex()
	if err := s.rebuildTable(ctx, u.db, "private_memories", newPrivate); err != nil {
		return fmt.Errorf("memstore: rebuild private index for %s: %w", userID, err)
	}
	newGroupShadow := s.newIndex()
	if err := s.rebuildTable(ctx, u.db, "group_memories", newGroupShadow); err != nil {
		return fmt.Errorf("memstore: rebuild group-shadow index for %s: %w", userID, err)
	}

	s.mu.Lock()
	u.private.Close()
	u.groupShadow.Close()
	u.private = newPrivate
	u.groupShadow = newGroupShadow
	s.mu.Unlock()

	base := filepath.Join(s.privateDir(), userID)
	s.saveIndex(newPrivate, s.indexPath(base+"_private"))
	s.saveIndex(newGroupShadow, s.indexPath(base+"_groupshadow"))
	return nil
}

// RebuildGroup re-embeds every row in a group's member_memories table and
// rebuilds its vector index from scratch.
func (s *Store) RebuildGroup(ctx context.Context, groupID string) error {
	g, err := s.openGroup(groupID)
	if err != nil {
		return err
	}

	newMember := s.newIndex()
	if err := s.rebuildTable(ctx, g.db, "member_memories", newMember); err != nil {
		return fmt.Errorf("memstore: rebuild member index for %s: %w", groupID, err)
	}

	s.mu.Lock()
	g.member.Close()
	g.member = newMember
	s.mu.Unlock()

	base := filepath.Join(s.groupsDir(), groupID)
	s.saveIndex(newMember, s.indexPath(base+"_member"))
	return nil
}

func (s *Store) rebuildTable(ctx context.Context, db *sql.DB, table string, idx vecstore.Index) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, content FROM %s ORDER BY created_at ASC`, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []string
	var texts []string
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return err
		}
		ids = append(ids, id)
		texts = append(texts, content)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("memstore: rebuild re-embed: %w", err)
	}
	for _, v := range vecs {
		normalize(v)
	}
	return idx.BatchInsert(ids, vecs)
}
