package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kurame123/confidant/internal/adapter"
	"github.com/kurame123/confidant/internal/llmclient"
	"github.com/kurame123/confidant/internal/scene"
	"github.com/kurame123/confidant/internal/scheduler"
	"github.com/kurame123/confidant/internal/shortterm"
	"github.com/kurame123/confidant/internal/stats"
)

// activeUserAdapter satisfies scheduler.ActiveUserSource by converting
// stats.ActiveUser into scheduler.ActiveUser, the two being distinct named
// types with the same shape so the scheduler package stays independent of
// internal/stats.
type activeUserAdapter struct {
	store *stats.Store
}

func (a activeUserAdapter) GetRecentActiveUsers(ctx context.Context, limit int) ([]scheduler.ActiveUser, error) {
	users, err := a.store.GetRecentActiveUsers(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.ActiveUser, len(users))
	for i, u := range users {
		out[i] = scheduler.ActiveUser{UserID: u.UserID, LastSeen: u.LastSeen}
	}
	return out, nil
}

// historyFetcher satisfies scheduler.HistoryFetcher by flattening an
// adapter.Adapter's history items (which carry scene.Part slices) into the
// plain-text shortterm.RawMessage shape short-term restoration expects.
// It tries a group fetch first and falls back to a private fetch, since
// the adapter contract splits those into two calls but the scheduler only
// passes a bare scene key.
type historyFetcher struct {
	adapter adapter.Adapter
	llm     *llmclient.Client // optional: nil skips image captioning, leaving an "[image]" placeholder instead
}

func newHistoryFetcher(a adapter.Adapter, llm *llmclient.Client) historyFetcher {
	return historyFetcher{adapter: a, llm: llm}
}

func (h historyFetcher) Recent(ctx context.Context, sceneKey string, n int) ([]shortterm.RawMessage, error) {
	items, err := h.adapter.FetchGroup(ctx, sceneKey, "", n)
	if err != nil || len(items) == 0 {
		items, err = h.adapter.FetchPrivate(ctx, sceneKey, n)
	}
	if err != nil {
		return nil, err
	}
	out := make([]shortterm.RawMessage, len(items))
	for i, it := range items {
		out[i] = shortterm.RawMessage{
			SenderUserID: it.SenderUserID,
			SenderName:   it.SenderName,
			IsBot:        it.IsBot,
			Text:         flattenParts(ctx, h.llm, it.Parts),
			Time:         it.Time,
		}
	}
	return out, nil
}

// flattenParts joins an inbound message's parts into one string: text
// parts are kept verbatim, image parts are captioned through llm's
// vision-caption role (supplements §4.1 step 3) when llm is non-nil and
// the role is configured. On any captioning failure, or when there is no
// llm, the image part becomes a bracketed placeholder instead of being
// silently dropped, so downstream retrieval/generation still knows a
// picture was sent.
func flattenParts(ctx context.Context, llm *llmclient.Client, parts []scene.Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		switch {
		case !p.IsImage():
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		case llm != nil:
			caption, err := llm.CaptionImage(ctx, p.ImageURL)
			if err != nil {
				texts = append(texts, "[image]")
				continue
			}
			texts = append(texts, fmt.Sprintf("[image: %s]", caption))
		default:
			texts = append(texts, "[image]")
		}
	}
	return strings.Join(texts, "\n")
}
