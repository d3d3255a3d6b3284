// Package adapter defines the chat-platform boundary spec.md §6 places out
// of scope: inbound events arrive as [scene.Event] values constructed by
// whatever gateway is wired in; outbound replies and history reads go
// through the [Adapter] interface so the orchestrator never depends on a
// concrete transport.
package adapter

import (
	"context"
	"time"

	"github.com/kurame123/confidant/internal/scene"
)

// Segment is one outbound unit: either a text segment or an image path,
// never both (spec.md §6 "send(scene, text-segment)" / "send(scene,
// image-path)").
type Segment struct {
	Text      string
	ImagePath string
}

// TextSegment builds a text outbound segment.
func TextSegment(text string) Segment { return Segment{Text: text} }

// ImageSegment builds an image outbound segment from a local file path.
func ImageSegment(path string) Segment { return Segment{ImagePath: path} }

// HistoryItem is one message returned by FetchPrivate/FetchGroup, used for
// short-term memory restoration (spec.md §4.7) and warm-up (§4.11).
type HistoryItem struct {
	SenderUserID string
	SenderName   string
	IsBot        bool
	Parts        []scene.Part
	Time         time.Time
}

// Identity identifies the bot account itself, as returned by SelfInfo.
type Identity struct {
	UserID string
	Name   string
}

// Adapter is the chat-platform boundary the orchestrator depends on.
// Implementations deliver inbound events out-of-band (not through this
// interface — spec.md treats ingestion as push, handled by whatever
// gateway owns the event loop) and accept outbound sends and history
// reads through these four methods.
type Adapter interface {
	// Send delivers one outbound segment to the given scene key.
	Send(ctx context.Context, sceneKey string, seg Segment) error

	// FetchPrivate returns up to n of the most recent messages in a
	// one-on-one conversation with user, ordered oldest first.
	FetchPrivate(ctx context.Context, user string, n int) ([]HistoryItem, error)

	// FetchGroup returns up to n of the most recent messages in group,
	// optionally filtered to one sender (userFilter == "" means no filter),
	// ordered oldest first.
	FetchGroup(ctx context.Context, group, userFilter string, n int) ([]HistoryItem, error)

	// SelfInfo identifies the bot account, used to tell bot messages apart
	// from user messages when restoring short-term history (spec.md §4.7).
	SelfInfo(ctx context.Context) (Identity, error)
}
