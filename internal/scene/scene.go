// Package scene defines the inbound message shape the orchestrator consumes
// and the scene-key rule shared by short-term memory, the vector store, and
// the scheduler's per-scene serialization (spec.md §3 "Message Event", §5,
// GLOSSARY "Scene").
//
// This boundary is deliberately tiny: spec.md places the chat-platform
// adapter itself out of scope, so scene only carries the sum type the core
// consumes, not any transport concern.
package scene

// Part is one piece of an inbound message. A Part is either a text
// fragment or an image reference (optionally marked as an emoji/sticker),
// never both — callers should check IsImage before reading ImageURL.
type Part struct {
	// Text holds the text content of a text part. Empty for image parts.
	Text string

	// ImageURL holds the source URL of an image part. Empty for text parts.
	ImageURL string

	// IsEmoji marks an image part that is a sticker/emoji rather than a
	// photo, so vision captioning (spec.md §4.1 step 3a) can skip it.
	IsEmoji bool
}

// IsImage reports whether p is an image part.
func (p Part) IsImage() bool { return p.ImageURL != "" }

// Event is one inbound message turn: a user id, an optional group
// id/name, the sender's display name, and an ordered list of content
// parts. Per spec.md §3's invariant, an Event with zero non-empty parts
// after caption resolution must be dropped silently rather than handled.
type Event struct {
	UserID    string
	UserName  string
	GroupID   string
	GroupName string
	Parts     []Part
}

// IsGroup reports whether this event originated in a group scene.
func (e Event) IsGroup() bool { return e.GroupID != "" }

// Key returns the scene key: the group id if present, else the user id
// (GLOSSARY "Scene"). Short-term memory, vector-store scope selection, and
// per-scene turn serialization are all keyed by this value.
func (e Event) Key() string {
	if e.GroupID != "" {
		return e.GroupID
	}
	return e.UserID
}
