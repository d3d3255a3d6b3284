package orchestrator

import (
	"context"
	"time"

	"github.com/kurame123/confidant/internal/shortterm"
)

// commit runs stage 11's post-commit side effects. Short-term append and
// long-term vector append happen synchronously, before the next turn on
// this scene can observe them (spec.md §5 ordering guarantee); graph
// extraction and the affection update run as fire-and-forget background
// tasks that must not stall the reply path (spec.md §5, §7).
func (o *Orchestrator) commit(ctx context.Context, t Turn, reply string) {
	o.deps.ShortTerm.Append(t.sceneKey(), shortterm.Triple{
		Query:  t.UserText,
		Reply:  reply,
		Sender: t.UserName,
	})

	if err := o.deps.Memory.AddPair(ctx, t.UserID, t.UserText, reply, t.GroupID, t.UserName); err != nil {
		o.deps.Logger.Error("orchestrator: append long-term memory failed", "user", t.UserID, "error", err)
	}

	// Background tasks detach from the turn's context: a client
	// disconnect or turn timeout must not cancel graph/affection writes.
	go o.extractGraph(t, reply)
	go o.updateAffection(t, reply)
}

func (o *Orchestrator) extractGraph(t Turn, reply string) {
	if o.deps.Graph == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	turnText := t.UserText + "\n" + reply
	result, err := o.deps.LLM.ExtractEntities(ctx, turnText)
	if err != nil {
		o.deps.Logger.Warn("orchestrator: background entity extraction failed", "user", t.UserID, "error", err)
		return
	}

	for _, e := range result.Entities {
		if err := o.deps.Graph.UpsertNode(ctx, t.UserID, e.Label, "", nil, e.AttrMap()); err != nil {
			o.deps.Logger.Warn("orchestrator: graph upsert node failed", "user", t.UserID, "entity", e.Label, "error", err)
		}
	}
	for _, r := range result.Relations {
		var ts time.Time
		if err := o.deps.Graph.UpsertEdge(ctx, t.UserID, r.From, r.To, r.RelType, r.TimeRef, ts); err != nil {
			o.deps.Logger.Warn("orchestrator: graph upsert edge failed", "user", t.UserID, "source", r.From, "error", err)
		}
	}
}

func (o *Orchestrator) updateAffection(t Turn, reply string) {
	if o.deps.Affection == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := o.deps.Affection.Update(ctx, t.UserID, t.UserText, reply); err != nil {
		o.deps.Logger.Warn("orchestrator: affection update failed", "user", t.UserID, "error", err)
	}
}
