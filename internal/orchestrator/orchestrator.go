// Package orchestrator implements the sole entrypoint for a message turn
// (spec.md §4.1): blacklist gate, injection guard, input cleansing,
// parallel retrieval, organizer summary, generator reply, persona rule
// check, and post-commit side effects. Every other core package
// (affection, guard, blacklist, kgraph, memstore, knowledge, persona,
// splitter, shortterm) is wired together here and nowhere else.
//
// Grounded on the teacher's root-composition style (haivivi-giztoy's
// cmd/*/main.go wiring each service once) generalized into a single
// stateless-per-call Handle method; the stage fan-out at retrieval time
// uses golang.org/x/sync/errgroup the way haivivi-giztoy's pkg/cortex
// fans out independent upstream calls.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kurame123/confidant/internal/affection"
	"github.com/kurame123/confidant/internal/blacklist"
	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/guard"
	"github.com/kurame123/confidant/internal/kgraph"
	"github.com/kurame123/confidant/internal/knowledge"
	"github.com/kurame123/confidant/internal/llmclient"
	"github.com/kurame123/confidant/internal/memstore"
	"github.com/kurame123/confidant/internal/persona"
	"github.com/kurame123/confidant/internal/shortterm"
	"github.com/kurame123/confidant/internal/tracelog"
)

// Deps bundles every component a turn can touch. All fields are required
// except KnowledgeBase, Graph, and Trace, which degrade gracefully when nil.
// Reply splitting (spec.md §4.8) happens outside Handle, on its returned
// string, since the contract is one reply-text per turn; the root
// composition wraps adapter.Send in splitter.ProcessAndWait.
type Deps struct {
	Affection     *affection.Store
	Guard         *guard.Guard
	Blacklist     *blacklist.Store
	Graph         *kgraph.Store // optional: nil disables stage 4c entirely
	Memory        *memstore.Store
	KnowledgeBase *knowledge.Store // optional: nil disables stage 4b/6
	Persona       *persona.Guard
	ShortTerm     *shortterm.Store
	LLM           *llmclient.Client
	Trace         *tracelog.Logger // optional: nil disables tracing, never errors
	Logger        *slog.Logger
}

// Orchestrator handles message turns. One instance is constructed per
// process by the root composition and shared across all scenes.
type Orchestrator struct {
	deps Deps
	cfg  config.Config
}

// New builds an Orchestrator from deps and the daemon's loaded configuration.
func New(deps Deps, cfg *config.Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps, cfg: *cfg}
}

// Turn is one inbound request to Handle (spec.md §4.1 contract).
type Turn struct {
	UserID    string
	UserName  string
	GroupID   string // empty for a private scene
	GroupName string
	UserText  string
}

func (t Turn) sceneKey() string {
	if t.GroupID != "" {
		return t.GroupID
	}
	return t.UserID
}

func (t Turn) isGroup() bool { return t.GroupID != "" }

// Handle runs the full pipeline for one turn and always returns a string:
// the generated reply, a ban notice, or the configured fallback. It never
// returns an error to the caller — internal failures are absorbed per
// spec.md §7's propagation policy and logged instead.
func (o *Orchestrator) Handle(ctx context.Context, t Turn) string {
	// Stage 1: blacklist gate.
	if o.deps.Blacklist != nil {
		if ban, ok, err := o.deps.Blacklist.GetInfo(ctx, t.UserID); err != nil {
			o.deps.Logger.Error("orchestrator: blacklist check failed", "user", t.UserID, "error", err)
		} else if ok {
			return o.banNotice(ban)
		}
	}

	// Stage 2: injection guard.
	if o.deps.Guard != nil && len([]rune(t.UserText)) >= o.cfg.Guard.SkipThreshold {
		verdict, err := o.deps.Guard.Check(ctx, t.UserID, t.UserText)
		o.traceGuard(t, verdict, time.Now())
		if err != nil {
			o.deps.Logger.Warn("orchestrator: guard call failed, failing open", "user", t.UserID, "error", err)
		} else if verdict.Blocked {
			if ban, ok, bErr := o.deps.Blacklist.GetInfo(ctx, t.UserID); bErr == nil && ok {
				return o.banNotice(ban)
			}
			return o.cfg.Persona.FallbackReply
		}
	}

	// Stage 3: input cleansing.
	cleanText := t.UserText
	if o.deps.Persona != nil {
		cleanText = o.deps.Persona.CleanInjection(t.UserText)
	}
	if strings.TrimSpace(cleanText) == "" {
		return ""
	}

	// Stage 4: parallel retrieval fan-out.
	ret := o.retrieve(ctx, t, cleanText)

	// Stage 5: organizer summary.
	memSummary, err := o.summarize(ctx, t, cleanText, ret)
	if err != nil {
		o.deps.Logger.Error("orchestrator: organizer failed", "user", t.UserID, "error", err)
		return o.cfg.Persona.FallbackReply
	}

	// Stage 6: knowledge organizer (conditional).
	kbSummary := o.condenseKnowledge(ctx, cleanText, ret.kbText)

	// Stage 7: recent-dialogue block.
	recentN, recentMaxChars := 6, 400
	if t.isGroup() {
		recentN = 4
	}
	recent := o.deps.ShortTerm.Recent(t.sceneKey(), recentN)
	recentBlock := shortterm.FormatRecent(recent, recentN, recentMaxChars)

	// Stage 8: generator.
	reply, err := o.generate(ctx, t, memSummary, recentBlock, kbSummary, ret.temperature)
	if err != nil {
		o.deps.Logger.Error("orchestrator: generator failed", "user", t.UserID, "error", err)
		return o.cfg.Persona.FallbackReply
	}

	// Stage 9: reply post-processing.
	reply = postProcess(reply)

	// Stage 10: rule check and corrective rewrite.
	if o.deps.Persona != nil && o.deps.Persona.CheckReplyRules(reply) {
		rewritten, err := o.deps.Persona.CorrectiveRewrite(ctx, o.cfg.Persona.AnchorParagraph, t.UserText)
		if err != nil {
			o.deps.Logger.Warn("orchestrator: corrective rewrite failed, keeping flagged reply", "user", t.UserID, "error", err)
		} else {
			reply = postProcess(rewritten)
		}
	}

	// Stage 11: post-commit side effects.
	o.commit(ctx, t, reply)

	return reply
}

func (o *Orchestrator) banNotice(ban blacklist.Ban) string {
	format := o.cfg.Persona.BanNoticeFormat
	if format == "" {
		format = "你已被暂时限制互动，剩余 %d 分钟。"
	}
	return fmt.Sprintf(format, ban.RemainingMinutes())
}

// stageDirection matches parenthesized asides a generator sometimes emits
// ("（微笑）", "(pauses)") that must not reach the user (spec.md §4.1 step 9).
var stageDirection = regexp.MustCompile(`[（(][^）)]*[）)]`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// postProcess strips stage directions and sentence periods and collapses
// whitespace, substituting an ellipsis if nothing meaningful remains.
func postProcess(reply string) string {
	out := stageDirection.ReplaceAllString(reply, "")
	out = strings.ReplaceAll(out, "。", "")
	out = strings.ReplaceAll(out, ".", "")
	out = whitespaceRun.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	if len([]rune(out)) < 2 {
		return "…"
	}
	return out
}
