package knowledge

import (
	"github.com/kurame123/confidant/internal/recall"
	"github.com/kurame123/confidant/internal/vecstore"
)

// vecBridge adapts a [vecstore.Index] (vecstore.Match results) to
// [recall.VectorIndex] (recall.VectorMatch results) so the knowledge base
// can reuse the same persistent HNSW index memstore uses instead of
// recall.MemVec, which never survives a restart.
type vecBridge struct {
	idx vecstore.Index
}

// NewPersistentIndex wraps idx for use as a knowledge base vector index.
func NewPersistentIndex(idx vecstore.Index) recall.VectorIndex {
	return &vecBridge{idx: idx}
}

func (b *vecBridge) Insert(id string, vector []float32) error {
	return b.idx.Insert(id, vector)
}

func (b *vecBridge) Search(query []float32, topK int) ([]recall.VectorMatch, error) {
	matches, err := b.idx.Search(query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]recall.VectorMatch, len(matches))
	for i, m := range matches {
		out[i] = recall.VectorMatch{ID: m.ID, Distance: m.Distance}
	}
	return out, nil
}

func (b *vecBridge) Delete(id string) error { return b.idx.Delete(id) }
func (b *vecBridge) Len() int               { return b.idx.Len() }
func (b *vecBridge) Close() error           { return b.idx.Close() }
