// Package splitter implements the reply-splitting post-processor
// (spec.md §4.8): long generator replies are broken into several shorter
// messages sent with a typing-speed-scaled delay between them, mimicking
// a human typing in bursts rather than pasting a wall of text.
//
// The segment boundaries come from the utility model role via
// internal/llmclient; this package only decides when to skip the call
// (disabled, short text, code fence) and post-processes the model's
// line-per-segment answer with strings/regexp (numbering stripped, blank
// lines dropped), falling back to the unsplit text on any failure.
package splitter

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/llmclient"
)

const systemPrompt = `Split the following reply into several short messages the way a person texting would send them one after another. One segment per line. No numbering, no bullet points, no extra punctuation around segments.`

var codeFence = regexp.MustCompile("```")

var leadingNumber = regexp.MustCompile(`^\s*[\d０-９]+[.、．)\s]+`)

// Splitter breaks a generator reply into display segments.
type Splitter struct {
	llm *llmclient.Client
	cfg config.SplitterConfig
}

// New builds a Splitter.
func New(llm *llmclient.Client, cfg config.SplitterConfig) *Splitter {
	return &Splitter{llm: llm, cfg: cfg}
}

// Split returns text as-is if splitting is disabled, text is shorter than
// the configured threshold, or text contains a code-fence marker.
// Otherwise it asks a small utility model to propose a line-per-segment
// split and parses the result, falling back to [text] on any failure.
func (s *Splitter) Split(ctx context.Context, text string) []string {
	if s.llm == nil || !s.cfg.Enabled || len([]rune(text)) < s.cfg.Threshold || codeFence.MatchString(text) {
		return []string{text}
	}

	resp, err := s.llm.ChatComplete(ctx, config.RoleUtility, llmclient.ChatRequest{
		Messages: []llmclient.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return []string{text}
	}

	var segments []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = leadingNumber.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line != "" {
			segments = append(segments, line)
		}
	}
	if len(segments) == 0 {
		return []string{text}
	}
	return segments
}

// ProcessAndWait calls fn for each segment of Split(text), sleeping
// len(segment) * TypingSpeed * jitter(0.8, 1.2) capped at MaxDelay
// between sends (spec.md §4.8 process_and_wait).
func (s *Splitter) ProcessAndWait(ctx context.Context, text string, fn func(segment string) error) error {
	segments := s.Split(ctx, text)
	for i, seg := range segments {
		if err := fn(seg); err != nil {
			return err
		}
		if i == len(segments)-1 {
			break
		}
		delay := s.typingDelay(seg)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func (s *Splitter) typingDelay(segment string) time.Duration {
	jitter := 0.8 + rand.Float64()*0.4
	delay := time.Duration(float64(len([]rune(segment))) * float64(s.cfg.TypingSpeed) * jitter)
	if s.cfg.MaxDelay > 0 && delay > s.cfg.MaxDelay {
		delay = s.cfg.MaxDelay
	}
	return delay
}
