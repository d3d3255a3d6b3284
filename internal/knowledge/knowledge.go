// Package knowledge implements the single global Knowledge Base store
// spec.md §3 describes ("Knowledge Record"): (id, source, title, content,
// optional category) plus one vector, immutable after ingest.
//
// Backed by internal/recall's generic segment-storage + multi-signal
// search engine, which already fuses vector/keyword/label scoring over a
// KV-prefixed space — a good fit for an immutable, un-bucketed knowledge
// corpus even though recall was originally written for the teacher's
// time-bucketed persona memory. Bucket machinery is simply never
// exercised here: every record is stored under recall.Bucket1H and never
// compacted, since a knowledge base has no aging/compaction concept.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/kurame123/confidant/internal/embed"
	"github.com/kurame123/confidant/internal/kv"
	"github.com/kurame123/confidant/internal/recall"
)

// Record is one knowledge-base entry (spec.md §3 "Knowledge Record").
type Record struct {
	ID       string
	Source   string
	Title    string
	Content  string
	Category string
}

// Store is the global knowledge base.
type Store struct {
	idx *recall.Index
}

var basePrefix = kv.Key{"kb"}

// Open builds the knowledge base over store, using embedder for semantic
// search and vec for nearest-neighbor lookups. Both may be nil to disable
// vector search and fall back to keyword/label matching alone.
func Open(store kv.Store, embedder embed.Embedder, vec recall.VectorIndex) *Store {
	return &Store{idx: recall.NewIndex(recall.IndexConfig{
		Store:    store,
		Embedder: embedder,
		Vec:      vec,
		Prefix:   basePrefix,
	})}
}

// Ingest stores one knowledge record. Records are immutable after ingest;
// re-ingesting the same id overwrites both the row and its vector.
func (s *Store) Ingest(ctx context.Context, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("knowledge: ingest requires a non-empty id")
	}
	// Segments are keyed by timestamp, so each record needs its own; the
	// previous row for this id (if any) is removed first.
	if err := s.idx.DeleteSegment(ctx, r.ID); err != nil {
		return fmt.Errorf("knowledge: ingest %s: %w", r.ID, err)
	}
	seg := recall.Segment{
		ID:        r.ID,
		Summary:   r.Title + "\n" + r.Content,
		Labels:    labelsFor(r),
		Timestamp: time.Now().UnixNano(),
	}
	return s.idx.StoreSegment(ctx, seg)
}

func labelsFor(r Record) []string {
	var labels []string
	if r.Source != "" {
		labels = append(labels, "source:"+r.Source)
	}
	if r.Category != "" {
		labels = append(labels, "category:"+r.Category)
	}
	return labels
}

// Hit is one scored knowledge-base search result.
type Hit struct {
	Record Record
	Score  float64
}

// Search runs the knowledge-base vector search (spec.md §4.1 stage 4b)
// against query text, returning up to limit hits sorted by relevance.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	scored, err := s.idx.SearchSegments(ctx, recall.SearchQuery{Text: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	hits := make([]Hit, 0, len(scored))
	for _, ss := range scored {
		hits = append(hits, Hit{Record: recordFromSegment(ss.Segment), Score: ss.Score})
	}
	return hits, nil
}

func recordFromSegment(seg recall.Segment) Record {
	r := Record{ID: seg.ID, Content: seg.Summary}
	for _, l := range seg.Labels {
		switch {
		case len(l) > 7 && l[:7] == "source:":
			r.Source = l[7:]
		case len(l) > 9 && l[:9] == "category:":
			r.Category = l[9:]
		}
	}
	return r
}

// Delete removes a knowledge record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.idx.DeleteSegment(ctx, id)
}
