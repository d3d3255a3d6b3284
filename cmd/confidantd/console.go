package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kurame123/confidant/internal/adapter"
	"github.com/kurame123/confidant/internal/scene"
)

// consoleAdapter is a minimal adapter.Adapter that reads one line of input
// per turn from in and writes replies to out, for local operation when no
// platform-specific transport is wired. It keeps just enough of its own
// conversation history to serve FetchPrivate, since it has no upstream
// platform to ask.
type consoleAdapter struct {
	in  *bufio.Scanner
	out io.Writer

	mu      sync.Mutex
	history []adapter.HistoryItem
}

func newConsoleAdapter(in io.Reader, out io.Writer) *consoleAdapter {
	return &consoleAdapter{in: bufio.NewScanner(in), out: out}
}

var _ adapter.Adapter = (*consoleAdapter)(nil)

// readLine blocks for the next line of console input, returning false at
// EOF.
func (c *consoleAdapter) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return c.in.Text(), true
}

func (c *consoleAdapter) recordInbound(ev scene.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, adapter.HistoryItem{
		SenderUserID: ev.UserID,
		SenderName:   ev.UserName,
		IsBot:        false,
		Parts:        ev.Parts,
		Time:         time.Now(),
	})
}

func (c *consoleAdapter) Send(ctx context.Context, sceneKey string, seg adapter.Segment) error {
	c.mu.Lock()
	c.history = append(c.history, adapter.HistoryItem{
		SenderUserID: "confidant",
		SenderName:   "confidant",
		IsBot:        true,
		Parts:        []scene.Part{{Text: seg.Text}},
		Time:         time.Now(),
	})
	c.mu.Unlock()

	if seg.ImagePath != "" {
		_, err := fmt.Fprintf(c.out, "[image: %s]\n", seg.ImagePath)
		return err
	}
	_, err := fmt.Fprintln(c.out, seg.Text)
	return err
}

func (c *consoleAdapter) FetchPrivate(ctx context.Context, user string, n int) ([]adapter.HistoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lastN(c.history, n), nil
}

func (c *consoleAdapter) FetchGroup(ctx context.Context, group, userFilter string, n int) ([]adapter.HistoryItem, error) {
	return nil, nil
}

func (c *consoleAdapter) SelfInfo(ctx context.Context) (adapter.Identity, error) {
	return adapter.Identity{UserID: "confidant", Name: "confidant"}, nil
}

func lastN(items []adapter.HistoryItem, n int) []adapter.HistoryItem {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
