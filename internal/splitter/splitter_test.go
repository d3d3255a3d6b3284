package splitter_test

import (
	"context"
	"testing"
	"time"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/splitter"
)

func TestSplitDisabledReturnsOriginal(t *testing.T) {
	s := splitter.New(nil, config.SplitterConfig{Enabled: false})
	got := s.Split(context.Background(), "a very long reply that would otherwise be split into pieces")
	if len(got) != 1 || got[0] != "a very long reply that would otherwise be split into pieces" {
		t.Fatalf("Split(disabled) = %v, want single-element passthrough", got)
	}
}

func TestSplitBelowThresholdReturnsOriginal(t *testing.T) {
	s := splitter.New(nil, config.SplitterConfig{Enabled: true, Threshold: 100})
	got := s.Split(context.Background(), "short reply")
	if len(got) != 1 || got[0] != "short reply" {
		t.Fatalf("Split(below threshold) = %v, want passthrough", got)
	}
}

func TestSplitWithCodeFenceReturnsOriginal(t *testing.T) {
	s := splitter.New(nil, config.SplitterConfig{Enabled: true, Threshold: 1})
	text := "here is code:\n```go\nfmt.Println(1)\n```"
	got := s.Split(context.Background(), text)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("Split(code fence) = %v, want passthrough", got)
	}
}

func TestSplitWithNilClientFallsBackToOriginal(t *testing.T) {
	s := splitter.New(nil, config.SplitterConfig{Enabled: true, Threshold: 1})
	got := s.Split(context.Background(), "a reply long enough to trigger a split attempt")
	if len(got) != 1 {
		t.Fatalf("Split(nil llm) = %v, want single-element fallback when no client is configured", got)
	}
}

func TestProcessAndWaitCallsEverySegment(t *testing.T) {
	s := splitter.New(nil, config.SplitterConfig{Enabled: false, TypingSpeed: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	var got []string
	err := s.ProcessAndWait(context.Background(), "single segment text", func(seg string) error {
		got = append(got, seg)
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessAndWait: %v", err)
	}
	if len(got) != 1 || got[0] != "single segment text" {
		t.Fatalf("ProcessAndWait callback got %v, want single segment", got)
	}
}
