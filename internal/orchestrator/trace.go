package orchestrator

import (
	"time"

	"github.com/kurame123/confidant/internal/guard"
	"github.com/kurame123/confidant/internal/llmclient"
	"github.com/kurame123/confidant/internal/tracelog"
)

// trace records one model call against the configured stage. resp may be
// nil on error. A nil Trace logger makes this a no-op.
func (o *Orchestrator) trace(stage, userID, userMessage string, resp *llmclient.ChatResponse, start time.Time, err error) {
	if o.deps.Trace == nil {
		return
	}
	e := tracelog.Entry{
		Stage:       stage,
		UserID:      userID,
		Elapsed:     time.Since(start),
		UserMessage: userMessage,
	}
	if resp != nil {
		e.Output = resp.Content
		e.ReasoningContent = resp.ReasoningContent
	}
	if err != nil {
		e.Output = "error: " + err.Error()
	}
	o.deps.Trace.Log(e)
}

// traceGuard records the guard's verdict for stage 2 (spec.md §4.12
// "guard only: is_blocked + reason").
func (o *Orchestrator) traceGuard(t Turn, v guard.Verdict, start time.Time) {
	if o.deps.Trace == nil {
		return
	}
	o.deps.Trace.Log(tracelog.Entry{
		Stage:       "guard",
		UserID:      t.UserID,
		Elapsed:     time.Since(start),
		UserMessage: t.UserText,
		HasVerdict:  true,
		IsBlocked:   v.Blocked,
		Reason:      v.Reason,
	})
}
