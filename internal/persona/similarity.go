package persona

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/kurame123/confidant/internal/embed"
)

// DefaultDriftThreshold is the minimum cosine similarity a reply's
// embedding must have against the persona anchor before it is flagged as
// drift (spec.md §4.9: "below a threshold (~0.45) flags drift").
const DefaultDriftThreshold = 0.45

// SimilarityChecker embeds the persona anchor paragraph once and compares
// every reply's embedding against it. Optional: spec.md §4.9 notes this
// check is "gated by cost", so callers wire it in only when the embedding
// role is configured and the budget allows an extra call per turn.
type SimilarityChecker struct {
	embedder  embed.Embedder
	threshold float64

	once      sync.Once
	anchor    []float32
	anchorErr error
}

// NewSimilarityChecker builds a checker bound to embedder, which must be
// non-nil.
func NewSimilarityChecker(embedder embed.Embedder, threshold float64) *SimilarityChecker {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return &SimilarityChecker{embedder: embedder, threshold: threshold}
}

func (c *SimilarityChecker) ensureAnchor(ctx context.Context, anchorParagraph string) error {
	c.once.Do(func() {
		c.anchor, c.anchorErr = c.embedder.Embed(ctx, anchorParagraph)
	})
	return c.anchorErr
}

// CheckDrift reports whether reply's embedding falls below the
// similarity threshold against the cached anchor embedding.
func (c *SimilarityChecker) CheckDrift(ctx context.Context, anchorParagraph, reply string) (drifted bool, similarity float64, err error) {
	if err := c.ensureAnchor(ctx, anchorParagraph); err != nil {
		return false, 0, fmt.Errorf("persona: embed anchor: %w", err)
	}
	replyVec, err := c.embedder.Embed(ctx, reply)
	if err != nil {
		return false, 0, fmt.Errorf("persona: embed reply: %w", err)
	}
	sim := cosineSimilarity(c.anchor, replyVec)
	return sim < c.threshold, sim, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
