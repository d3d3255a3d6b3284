package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/scheduler"
	"github.com/kurame123/confidant/internal/shortterm"
)

type fakeBlacklist struct{ calls int32 }

func (f *fakeBlacklist) CleanupExpired(ctx context.Context) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return 0, nil
}

type fakeGraph struct{ users []string }

func (f *fakeGraph) UsersWithNodes(ctx context.Context, limit int) ([]string, error) {
	return f.users, nil
}

type fakeMemoryGC struct{ calls int32 }

func (f *fakeMemoryGC) RunGC(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

type fakeActiveUsers struct{ users []scheduler.ActiveUser }

func (f *fakeActiveUsers) GetRecentActiveUsers(ctx context.Context, limit int) ([]scheduler.ActiveUser, error) {
	return f.users, nil
}

type fakeHistory struct{ msgs []shortterm.RawMessage }

func (f *fakeHistory) Recent(ctx context.Context, sceneKey string, n int) ([]shortterm.RawMessage, error) {
	return f.msgs, nil
}

func TestStartRunsWarmupSynchronously(t *testing.T) {
	store := shortterm.NewStore()
	au := &fakeActiveUsers{users: []scheduler.ActiveUser{{UserID: "u1"}}}
	hist := &fakeHistory{msgs: []shortterm.RawMessage{
		{SenderUserID: "u1", SenderName: "u1", Text: "hi", Time: time.Now()},
		{SenderUserID: "bot", IsBot: true, Text: "hello", Time: time.Now().Add(time.Second)},
	}}

	s := scheduler.New(config.SchedulerConfig{WarmupUsers: 20, WarmupN: 100}, nil, scheduler.WithWarmup(au, hist, store))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	if store.Len("u1") != 1 {
		t.Fatalf("short-term len for u1 = %d, want 1 restored triple", store.Len("u1"))
	}
}

func TestStartSchedulesBlacklistAndGraphAndMemoryJobs(t *testing.T) {
	bl := &fakeBlacklist{}
	graph := &fakeGraph{users: []string{"u1"}}
	mem := &fakeMemoryGC{}

	var heuristicCalls, aiCalls int32
	heuristic := func(ctx context.Context, userID string) error {
		atomic.AddInt32(&heuristicCalls, 1)
		return nil
	}
	ai := func(ctx context.Context, userID string) error {
		atomic.AddInt32(&aiCalls, 1)
		return nil
	}

	s := scheduler.New(config.SchedulerConfig{}, nil,
		scheduler.WithBlacklistSweep(bl, 50*time.Millisecond),
		scheduler.WithGraphCleanup(graph, ai, heuristic, 50*time.Millisecond, 10),
		scheduler.WithMemoryGC(mem, 50*time.Millisecond),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	time.Sleep(200 * time.Millisecond)

	if atomic.LoadInt32(&bl.calls) == 0 {
		t.Fatal("blacklist sweep never ran")
	}
	if atomic.LoadInt32(&mem.calls) == 0 {
		t.Fatal("memory gc never ran")
	}
	if atomic.LoadInt32(&heuristicCalls) == 0 || atomic.LoadInt32(&aiCalls) == 0 {
		t.Fatal("graph cleanup passes never ran")
	}
}

func TestStopIsIdempotentWithoutStart(t *testing.T) {
	s := scheduler.New(config.SchedulerConfig{}, nil)
	s.Stop(context.Background())
}
