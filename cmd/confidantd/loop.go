package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kurame123/confidant/internal/adapter"
	"github.com/kurame123/confidant/internal/orchestrator"
	"github.com/kurame123/confidant/internal/scene"
)

// runMessageLoop drives the console adapter: each line of input becomes one
// turn through the orchestrator, and the reply is split and sent back out
// through the adapter (spec.md §4.8 splitting happens outside Handle, per
// orchestrator.Deps's doc comment).
func runMessageLoop(ctx context.Context, d *daemon) error {
	console, ok := d.adapter.(*consoleAdapter)
	if !ok {
		<-ctx.Done()
		return ctx.Err()
	}

	fmt.Fprintln(console.out, "confidant> ready. type a message, or /quit to exit.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, ok := console.readLine()
		if !ok {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}

		ev := scene.Event{
			UserID:   "console-user",
			UserName: "console",
			Parts:    []scene.Part{{Text: line}},
		}
		console.recordInbound(ev)

		reply := d.orch.Handle(ctx, orchestrator.Turn{
			UserID:   ev.UserID,
			UserName: ev.UserName,
			UserText: line,
		})

		if err := d.splitter.ProcessAndWait(ctx, reply, func(segment string) error {
			return d.adapter.Send(ctx, ev.Key(), adapter.TextSegment(segment))
		}); err != nil {
			d.logger.Error("message loop: send failed", "error", err)
		}
	}
}
