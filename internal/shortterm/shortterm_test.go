package shortterm_test

import (
	"testing"
	"time"

	"github.com/kurame123/confidant/internal/shortterm"
)

func TestAppendAndRecent(t *testing.T) {
	s := shortterm.NewStore()
	s.Append("scene1", shortterm.Triple{Query: "hi", Reply: "hello", Sender: "alice"})
	s.Append("scene1", shortterm.Triple{Query: "bye", Reply: "see ya", Sender: "alice"})

	got := s.Recent("scene1", 1)
	if len(got) != 1 || got[0].Query != "bye" {
		t.Fatalf("Recent(1) = %+v, want last triple only", got)
	}

	all := s.Recent("scene1", 10)
	if len(all) != 2 {
		t.Fatalf("Recent(10) len = %d, want 2", len(all))
	}
}

func TestRingEvictsOldest(t *testing.T) {
	s := shortterm.NewStore()
	for i := 0; i < shortterm.Capacity+5; i++ {
		s.Append("scene1", shortterm.Triple{Query: "q", Sender: "alice"})
	}
	if got := s.Len("scene1"); got != shortterm.Capacity {
		t.Fatalf("Len = %d, want %d", got, shortterm.Capacity)
	}
}

func TestFormatRecent(t *testing.T) {
	triples := []shortterm.Triple{
		{Query: "hi", Reply: "hello", Sender: "alice"},
		{Query: "how are you", Reply: "good", Sender: "alice"},
	}
	got := shortterm.FormatRecent(triples, 6, 400)
	want := "alice: hi\nbot: hello\nalice: how are you\nbot: good"
	if got != want {
		t.Fatalf("FormatRecent = %q, want %q", got, want)
	}
}

func TestFormatRecentTruncatesOldestFirst(t *testing.T) {
	triples := []shortterm.Triple{
		{Query: "first message padding text", Sender: "alice"},
		{Query: "second", Sender: "alice"},
	}
	got := shortterm.FormatRecent(triples, 6, 15)
	want := "alice: second"
	if got != want {
		t.Fatalf("FormatRecent truncated = %q, want %q", got, want)
	}
}

func TestBuildTriplesFromHistoryPairsAndDropsCommands(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []shortterm.RawMessage{
		{SenderUserID: "u1", SenderName: "alice", Text: "/skip", Time: base},
		{SenderUserID: "u1", SenderName: "alice", Text: "hi", Time: base.Add(time.Second)},
		{SenderUserID: "bot", IsBot: true, Text: "hello", Time: base.Add(2 * time.Second)},
		{SenderUserID: "u1", SenderName: "alice", Text: "", Time: base.Add(3 * time.Second)},
		{SenderUserID: "u1", SenderName: "alice", Text: "question one", Time: base.Add(4 * time.Second)},
		{SenderUserID: "u1", SenderName: "alice", Text: "question two", Time: base.Add(5 * time.Second)},
	}

	got := shortterm.BuildTriplesFromHistory(msgs)
	if len(got) != 2 {
		t.Fatalf("len(triples) = %d, want 2", len(got))
	}
	if got[0].Query != "hi" || got[0].Reply != "hello" {
		t.Fatalf("triples[0] = %+v, want paired hi/hello", got[0])
	}
	if got[1].Query != "question two" || got[1].Reply != "" {
		t.Fatalf("triples[1] = %+v, want unpaired latest question two", got[1])
	}
}

func TestRestore(t *testing.T) {
	s := shortterm.NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Restore("scene1", []shortterm.RawMessage{
		{SenderUserID: "u1", SenderName: "alice", Text: "hi", Time: base},
		{SenderUserID: "bot", IsBot: true, Text: "hello", Time: base.Add(time.Second)},
	})
	if got := s.Len("scene1"); got != 1 {
		t.Fatalf("Len after Restore = %d, want 1", got)
	}
}
