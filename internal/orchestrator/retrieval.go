package orchestrator

import (
	"context"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/kurame123/confidant/internal/affection"
	"github.com/kurame123/confidant/internal/kgraph"
	"github.com/kurame123/confidant/internal/knowledge"
	"github.com/kurame123/confidant/internal/memstore"
)

// retrieval bundles the output of stage 4's parallel fan-out.
type retrieval struct {
	memoryText  string
	kbText      string
	kbHits      []knowledge.Hit
	graphText   string
	temperature float64
}

// shortQuerySkipSet is the fixed closed-class set of trivial queries that
// skip retrieval even when they clear the rune-count threshold (spec.md
// §4.1 algorithmic notes).
var shortQuerySkipSet = map[string]bool{
	"你好": true, "在吗": true, "在": true, "hi": true, "hello": true,
	"ok": true, "好的": true, "嗯嗯": true, "拜拜": true,
}

func (o *Orchestrator) skipRetrieval(text string) bool {
	runes := []rune(text)
	threshold := o.cfg.Retrieval.ShortQueryRunes
	if threshold <= 0 {
		threshold = 4
	}
	if len(runes) < threshold {
		return true
	}
	return shortQuerySkipSet[text]
}

// retrieve runs stage 4's four independent lookups concurrently: vector
// memory search, knowledge-base search, graph retrieval, and the
// affection-derived temperature. A failure in any branch degrades that
// branch to empty/default rather than failing the turn (spec.md §7
// "retrieval errors are absorbed to empty context").
func (o *Orchestrator) retrieve(ctx context.Context, t Turn, cleanText string) retrieval {
	var ret retrieval
	skip := o.skipRetrieval(cleanText)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if skip {
			return nil
		}
		sc := memstore.PrivateScope(t.UserID)
		if t.isGroup() {
			sc = memstore.GroupScope(t.GroupID)
		}
		k, threshold, maxChars := o.retrievalBudget()
		text, err := o.deps.Memory.Search(gctx, sc, cleanText, k, threshold, maxChars, o.cfg.Retrieval.CrossScope)
		if err != nil {
			o.deps.Logger.Warn("orchestrator: memory search failed", "user", t.UserID, "error", err)
			return nil
		}
		ret.memoryText = text
		return nil
	})

	g.Go(func() error {
		if skip || o.deps.KnowledgeBase == nil {
			return nil
		}
		limit := o.cfg.Retrieval.KnowledgeTopK
		if limit <= 0 {
			limit = 5
		}
		hits, err := o.deps.KnowledgeBase.Search(gctx, cleanText, limit)
		if err != nil {
			o.deps.Logger.Warn("orchestrator: knowledge search failed", "user", t.UserID, "error", err)
			return nil
		}
		ret.kbHits = hits
		ret.kbText = formatKnowledgeHits(hits, o.cfg.Retrieval.KnowledgeMaxChars)
		return nil
	})

	g.Go(func() error {
		if skip || o.deps.Graph == nil {
			return nil
		}
		keywords, timeRef, err := o.deps.LLM.ExtractKeywordsAndTimeRef(gctx, cleanText)
		if err != nil || len(keywords) == 0 {
			keywords = kgraph.HeuristicKeywords(cleanText)
		}
		if len(keywords) == 0 {
			return nil
		}
		text, err := o.deps.Graph.Retrieve(gctx, t.UserID, keywords, timeRef)
		if err != nil {
			o.deps.Logger.Warn("orchestrator: graph retrieval failed", "user", t.UserID, "error", err)
			return nil
		}
		ret.graphText = text
		return nil
	})

	g.Go(func() error {
		temp := o.cfg.Affection.DefaultTemperature
		if o.deps.Affection == nil {
			ret.temperature = temp
			return nil
		}
		levelTemps := o.levelTemperatures()
		t2, err := o.deps.Affection.TemperatureFor(gctx, t.UserID, temp, levelTemps)
		if err != nil {
			o.deps.Logger.Warn("orchestrator: affection lookup failed", "user", t.UserID, "error", err)
			ret.temperature = temp
			return nil
		}
		ret.temperature = t2
		return nil
	})

	_ = g.Wait() // branches already absorb their own errors; Wait only joins goroutines

	return ret
}

func (o *Orchestrator) retrievalBudget() (k int, threshold float64, maxChars int) {
	k = o.cfg.Retrieval.TopK
	if k <= 0 {
		k = 5
	}
	threshold = o.cfg.Retrieval.ScoreThreshold
	maxChars = o.cfg.Retrieval.MaxChars
	if maxChars <= 0 {
		maxChars = 800
	}
	return
}

// levelTemperatures resolves each affection level's AFF_TEMP_* environment
// override (affection.TempEnvKeys) into a level->temperature map.
func (o *Orchestrator) levelTemperatures() map[int]float64 {
	out := make(map[int]float64, len(affection.TempEnvKeys))
	for level, envKey := range affection.TempEnvKeys {
		v := os.Getenv(envKey)
		if v == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[level] = f
		}
	}
	return out
}

func formatKnowledgeHits(hits []knowledge.Hit, maxChars int) string {
	if len(hits) == 0 {
		return ""
	}
	var out string
	for _, h := range hits {
		line := "- " + h.Record.Content + "\n"
		if maxChars > 0 && len(out)+len(line) > maxChars {
			break
		}
		out += line
	}
	return out
}
