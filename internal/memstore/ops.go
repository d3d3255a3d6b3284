package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kurame123/confidant/internal/vecstore"
)

const nearestPad = 5 // spec.md §4.2: fetch k+5 nearest before thresholding

// AddPair stores one turn (spec.md §4.2 add_pair). group and sender are
// optional; when group is non-empty the turn is additionally recorded in
// the group's member_memories table and the user's group-shadow side table.
func (s *Store) AddPair(ctx context.Context, user, query, reply, group, sender string) error {
	if user == "" {
		return fmt.Errorf("memstore: add_pair requires a user id")
	}
	content := "User问: " + query + "\nBot答: " + reply
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("memstore: embed pair: %w", err)
	}
	normalize(vec)

	u, err := s.openUser(user)
	if err != nil {
		return err
	}

	id := newSurrogateID()
	now := time.Now().UnixNano()
	if _, err := u.db.ExecContext(ctx,
		`INSERT INTO private_memories (id, role, content, query, reply, created_at) VALUES (?, 'pair', ?, ?, ?, ?)`,
		id, content, query, reply, now); err != nil {
		return fmt.Errorf("memstore: insert private_memories: %w", err)
	}
	if err := u.private.Insert(id, vec); err != nil {
		return fmt.Errorf("memstore: insert private vector: %w", err)
	}

	if group == "" {
		return nil
	}

	shadowID := newSurrogateID()
	if _, err := u.db.ExecContext(ctx,
		`INSERT INTO group_memories (id, role, content, query, reply, group_id, created_at) VALUES (?, 'pair', ?, ?, ?, ?, ?)`,
		shadowID, content, query, reply, group, now); err != nil {
		return fmt.Errorf("memstore: insert group_memories shadow: %w", err)
	}
	if err := u.groupShadow.Insert(shadowID, vec); err != nil {
		return fmt.Errorf("memstore: insert group-shadow vector: %w", err)
	}

	g, err := s.openGroup(group)
	if err != nil {
		return err
	}
	memberID := newSurrogateID()
	if _, err := g.db.ExecContext(ctx,
		`INSERT INTO member_memories (id, role, content, query, reply, sender, created_at) VALUES (?, 'pair', ?, ?, ?, ?, ?)`,
		memberID, content, query, reply, sender, now); err != nil {
		return fmt.Errorf("memstore: insert member_memories: %w", err)
	}
	if err := g.member.Insert(memberID, vec); err != nil {
		return fmt.Errorf("memstore: insert member vector: %w", err)
	}

	return nil
}

// Search runs search(scope, query, k, threshold, max_chars, cross_scope)
// (spec.md §4.2) and returns a pre-formatted text block, or "" if nothing
// survived thresholding.
//
// scope is either PrivateScope(userID) or GroupScope(groupID). crossScope
// only affects a private scope: when true, the user's group-shadow side
// table is also searched.
func (s *Store) Search(ctx context.Context, sc Scope, query string, k int, threshold float64, maxChars int, crossScope bool) (string, error) {
	if k <= 0 {
		k = 5
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("memstore: embed query: %w", err)
	}
	normalize(qvec)

	var hits []Hit
	switch sc.Kind {
	case ScopeKindPrivate:
		u, err := s.openUser(sc.ID)
		if err != nil {
			return "", err
		}
		h, err := s.searchIndex(ctx, u.db, "private_memories", u.private, qvec, k, threshold)
		if err != nil {
			return "", err
		}
		hits = append(hits, h...)
		if crossScope {
			h, err := s.searchIndex(ctx, u.db, "group_memories", u.groupShadow, qvec, k, threshold)
			if err != nil {
				return "", err
			}
			hits = append(hits, h...)
		}
	case ScopeKindGroup:
		g, err := s.openGroup(sc.ID)
		if err != nil {
			return "", err
		}
		h, err := s.searchIndex(ctx, g.db, "member_memories", g.member, qvec, k, threshold)
		if err != nil {
			return "", err
		}
		hits = append(hits, h...)
	default:
		return "", fmt.Errorf("memstore: unknown scope kind %q", sc.Kind)
	}

	if len(hits) == 0 {
		return "", nil
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	return packHits(hits, maxChars), nil
}

// searchIndex fetches k+5 nearest vectors from idx, drops those below
// threshold, loads their rows from table, and scores them with the
// time-weighted formula (spec.md §4.1 algorithmic notes).
func (s *Store) searchIndex(ctx context.Context, db *sql.DB, table string, idx vecstore.Index, qvec []float32, k int, threshold float64) ([]Hit, error) {
	if idx.Len() == 0 {
		return nil, nil
	}
	matches, err := idx.Search(qvec, k+nearestPad)
	if err != nil {
		return nil, fmt.Errorf("memstore: vector search %s: %w", table, err)
	}

	kept := make(map[string]float64, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		// vecstore reports cosine distance (1 - cosine, in [0, 2]);
		// recover the cosine similarity.
		sim := 1 - float64(m.Distance)
		if sim < threshold {
			continue
		}
		kept[m.ID] = sim
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := loadRecords(ctx, db, table, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rows))
	for id, rec := range rows {
		sim := kept[id]
		hits = append(hits, Hit{Record: rec, Score: timeWeightedScore(sim, rec.CreatedAt)})
	}
	return hits, nil
}

// loadRecords bulk-loads rows by surrogate id from one of the three memory
// tables, tolerating their slightly different column sets (only
// member_memories has sender, only group_memories has group_id).
func loadRecords(ctx context.Context, db *sql.DB, table string, ids []string) (map[string]Record, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	var query string
	switch table {
	case "member_memories":
		query = fmt.Sprintf(`SELECT id, role, content, query, reply, sender, created_at FROM %s WHERE id IN (%s)`,
			table, strings.Join(placeholders, ","))
	case "group_memories":
		query = fmt.Sprintf(`SELECT id, role, content, query, reply, group_id, created_at FROM %s WHERE id IN (%s)`,
			table, strings.Join(placeholders, ","))
	default: // private_memories
		query = fmt.Sprintf(`SELECT id, role, content, query, reply, created_at FROM %s WHERE id IN (%s)`,
			table, strings.Join(placeholders, ","))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memstore: load records from %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]Record, len(ids))
	for rows.Next() {
		var r Record
		var extra sql.NullString
		switch table {
		case "member_memories":
			if err := rows.Scan(&r.ID, &r.Role, &r.Content, &r.Query, &r.Reply, &extra, &r.CreatedAt); err != nil {
				return nil, err
			}
			r.Sender = extra.String
		case "group_memories":
			if err := rows.Scan(&r.ID, &r.Role, &r.Content, &r.Query, &r.Reply, &extra, &r.CreatedAt); err != nil {
				return nil, err
			}
			r.GroupID = extra.String
		default:
			if err := rows.Scan(&r.ID, &r.Role, &r.Content, &r.Query, &r.Reply, &r.CreatedAt); err != nil {
				return nil, err
			}
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// packHits formats hits into "- [MM-DD HH:MM] [sender] [role] content"
// lines, stopping once appending the next line would exceed maxChars.
func packHits(hits []Hit, maxChars int) string {
	var b strings.Builder
	for _, h := range hits {
		r := h.Record
		sender := r.Sender
		if sender == "" {
			sender = "user"
		}
		line := fmt.Sprintf("- [%s] [%s] [%s] %s\n",
			time.Unix(0, r.CreatedAt).Format("01-02 15:04"), sender, r.Role, r.Content)
		if maxChars > 0 && b.Len()+len(line) > maxChars {
			break
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// normalize L2-normalizes v in place (spec.md §3/§8: every stored vector
// has unit norm).
func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// timeWeightedScore implements spec.md §4.1's re-ranking formula:
// cosine * (1 + 0.3 * exp(-age / 7 days)).
func timeWeightedScore(cosine float64, createdAt int64) float64 {
	age := time.Since(time.Unix(0, createdAt))
	const halfLife = 7 * 24 * time.Hour
	return cosine * (1 + 0.3*math.Exp(-age.Seconds()/halfLife.Seconds()))
}
