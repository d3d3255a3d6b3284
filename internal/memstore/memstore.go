// Package memstore implements the dual-scope long-term memory vector store
// spec.md §3 and §4.2 describe: a per-user private store holding that
// user's own turns plus a shadow copy of the user's turns in any group, and
// a per-group store holding every member's turns in that group. Each scope
// pairs a SQLite table of literal turn records with a flat inner-product
// vector index (spec.md §6's "FAISS-style" on-disk layout), backed here by
// [vecstore.HNSW] (default) or [vecstore.Memory] ("flat" in config, for
// small scopes where HNSW's build overhead isn't worth it).
//
// Grounded on spec.md §4.2's literal add_pair/search contract rather than
// the teacher's unrelated hierarchical persona-summary memory
// (internal/longterm, deleted — see DESIGN.md) or internal/recall's
// generic segment engine (repurposed instead for the separate global
// knowledge base, internal/knowledge).
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/embed"
	"github.com/kurame123/confidant/internal/llmclient"
	_ "github.com/kurame123/confidant/internal/sqlitedriver"
	"github.com/kurame123/confidant/internal/vecstore"
)

// Scope kinds.
const (
	ScopeKindPrivate = "private"
	ScopeKindGroup   = "group"
)

// Scope names which store a search/add_pair call targets.
type Scope struct {
	Kind string // ScopeKindPrivate or ScopeKindGroup
	ID   string // user id or group id
}

// PrivateScope builds a scope for one user's private store.
func PrivateScope(userID string) Scope { return Scope{Kind: ScopeKindPrivate, ID: userID} }

// GroupScope builds a scope for one group's store.
func GroupScope(groupID string) Scope { return Scope{Kind: ScopeKindGroup, ID: groupID} }

// Record is one stored turn (spec.md §3 "Long-Term Memory Record").
type Record struct {
	ID        string
	Role      string // "pair" or "summary" (spec.md §4.10)
	Content   string // "User问: " + query + "\nBot答: " + reply
	Query     string
	Reply     string
	Sender    string // display name; set for group/member rows
	GroupID   string // set on a user's group-shadow rows
	CreatedAt int64  // unix nanoseconds
}

// Hit is one scored search result.
type Hit struct {
	Record Record
	Score  float64
}

// scope bundles one SQLite connection and the vector index (or indices)
// that back it.
type userScope struct {
	db          *sql.DB
	private     vecstore.Index
	groupShadow vecstore.Index
}

type groupScope struct {
	db     *sql.DB
	member vecstore.Index
}

// Store is the dual-scope long-term memory vector store.
type Store struct {
	dir      string
	embedder embed.Embedder
	backend  string
	gcCfg    config.MemoryGCConfig
	llm      *llmclient.Client
	logger   *slog.Logger

	mu     sync.Mutex
	users  map[string]*userScope
	groups map[string]*groupScope
}

// New creates a Store rooted at dir (spec.md §6: dir/private/{user}.db and
// dir/groups/{group}.db). Scopes are opened lazily on first use.
func New(dir string, embedder embed.Embedder, backend string, gcCfg config.MemoryGCConfig, llm *llmclient.Client, logger *slog.Logger) *Store {
	if backend == "" {
		backend = "hnsw"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      dir,
		embedder: embedder,
		backend:  backend,
		gcCfg:    gcCfg,
		llm:      llm,
		logger:   logger,
		users:    make(map[string]*userScope),
		groups:   make(map[string]*groupScope),
	}
}

func (s *Store) privateDir() string { return filepath.Join(s.dir, "private") }
func (s *Store) groupsDir() string  { return filepath.Join(s.dir, "groups") }

// newIndex builds an empty vector index of the configured backend.
func (s *Store) newIndex() vecstore.Index {
	if s.backend == "flat" {
		return vecstore.NewMemory()
	}
	return vecstore.NewHNSW(vecstore.HNSWConfig{Dim: s.embedder.Dimension()})
}

// indexPath returns the on-disk path for a scope's persisted HNSW index.
// Flat ("memory") indices are not persisted across restarts.
func (s *Store) indexPath(base string) string { return base + ".idx" }

func (s *Store) loadOrNewIndex(path string) (vecstore.Index, error) {
	if s.backend != "flat" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			idx, err := vecstore.LoadHNSW(f)
			if err == nil {
				return idx, nil
			}
			s.logger.Warn("memstore: failed to load persisted index, starting empty", "path", path, "error", err)
		}
	}
	return s.newIndex(), nil
}

func (s *Store) saveIndex(idx vecstore.Index, path string) {
	h, ok := idx.(*vecstore.HNSW)
	if !ok {
		return // flat/Memory backend: nothing to persist
	}
	if err := idx.Flush(); err != nil {
		s.logger.Warn("memstore: index flush failed", "path", path, "error", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		s.logger.Warn("memstore: index save failed", "path", path, "error", err)
		return
	}
	if err := h.Save(f); err != nil {
		f.Close()
		s.logger.Warn("memstore: index save failed", "path", path, "error", err)
		return
	}
	if err := f.Close(); err != nil {
		s.logger.Warn("memstore: index save failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Warn("memstore: index rename failed", "path", path, "error", err)
	}
}

const userSchema = `
CREATE TABLE IF NOT EXISTS private_memories (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'pair',
	content TEXT NOT NULL,
	query TEXT NOT NULL,
	reply TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS group_memories (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'pair',
	content TEXT NOT NULL,
	query TEXT NOT NULL,
	reply TEXT NOT NULL,
	group_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_private_memories_created ON private_memories(created_at);
CREATE INDEX IF NOT EXISTS idx_group_memories_created ON group_memories(created_at);
`

const groupSchema = `
CREATE TABLE IF NOT EXISTS member_memories (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'pair',
	content TEXT NOT NULL,
	query TEXT NOT NULL,
	reply TEXT NOT NULL,
	sender TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_member_memories_created ON member_memories(created_at);
`

// openUser lazily opens (creating if absent) a user's private.db plus its
// two vector indices (private turns, and the group-shadow side table).
func (s *Store) openUser(userID string) (*userScope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok {
		return u, nil
	}

	if err := os.MkdirAll(s.privateDir(), 0o755); err != nil {
		return nil, fmt.Errorf("memstore: mkdir private dir: %w", err)
	}
	base := filepath.Join(s.privateDir(), userID)
	db, err := sql.Open("sqlite3", base+".db")
	if err != nil {
		return nil, fmt.Errorf("memstore: open user db %s: %w", userID, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(userSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memstore: create user schema %s: %w", userID, err)
	}

	privIdx, err := s.loadOrNewIndex(s.indexPath(base + "_private"))
	if err != nil {
		db.Close()
		return nil, err
	}
	groupIdx, err := s.loadOrNewIndex(s.indexPath(base + "_groupshadow"))
	if err != nil {
		db.Close()
		return nil, err
	}

	u := &userScope{db: db, private: privIdx, groupShadow: groupIdx}
	s.users[userID] = u
	return u, nil
}

// openGroup lazily opens a group's db plus its member-memories index.
func (s *Store) openGroup(groupID string) (*groupScope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.groups[groupID]; ok {
		return g, nil
	}

	if err := os.MkdirAll(s.groupsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("memstore: mkdir groups dir: %w", err)
	}
	base := filepath.Join(s.groupsDir(), groupID)
	db, err := sql.Open("sqlite3", base+".db")
	if err != nil {
		return nil, fmt.Errorf("memstore: open group db %s: %w", groupID, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(groupSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memstore: create group schema %s: %w", groupID, err)
	}

	idx, err := s.loadOrNewIndex(s.indexPath(base + "_member"))
	if err != nil {
		db.Close()
		return nil, err
	}

	g := &groupScope{db: db, member: idx}
	s.groups[groupID] = g
	return g, nil
}

// Close flushes every open index to disk and closes every open database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, u := range s.users {
		base := filepath.Join(s.privateDir(), userID)
		s.saveIndex(u.private, s.indexPath(base+"_private"))
		s.saveIndex(u.groupShadow, s.indexPath(base+"_groupshadow"))
		u.private.Close()
		u.groupShadow.Close()
		u.db.Close()
	}
	for groupID, g := range s.groups {
		base := filepath.Join(s.groupsDir(), groupID)
		s.saveIndex(g.member, s.indexPath(base+"_member"))
		g.member.Close()
		g.db.Close()
	}
	return nil
}

func newSurrogateID() string { return uuid.NewString() }
