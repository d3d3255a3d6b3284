// Package scheduler runs the background maintenance jobs spec.md §4.11
// describes: blacklist-expiry sweeps, knowledge-graph cleanup, long-term
// memory GC, and short-term history warm-up on process start.
//
// Grounded on teradata-labs-loom's pkg/scheduler.Scheduler for the
// robfig/cron/v3 wiring shape (one *cron.Cron, one AddFunc per job,
// Start/Stop lifecycle); unlike that scheduler this one has a fixed set
// of jobs rather than dynamically registered ones, so there is no
// per-job database-backed registry.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/shortterm"
)

// BlacklistStore is the subset of blacklist.Store the scheduler needs.
type BlacklistStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// GraphMaintainer is the subset of kgraph.Store the scheduler needs,
// plus the package-level AI/heuristic cleanup drivers (satisfied by
// passing kgraph.RunAICleanup/RunHeuristicCleanup as closures).
type GraphMaintainer interface {
	UsersWithNodes(ctx context.Context, limit int) ([]string, error)
}

// GraphCleanupFunc runs one cleanup pass for a single user's graph.
type GraphCleanupFunc func(ctx context.Context, userID string) error

// MemoryGCRunner performs long-term vector store garbage collection
// (spec.md §4.10). Satisfied by internal/memstore's Store.
type MemoryGCRunner interface {
	RunGC(ctx context.Context) error
}

// ActiveUserSource reports recently active users for warm-up.
type ActiveUserSource interface {
	GetRecentActiveUsers(ctx context.Context, limit int) ([]ActiveUser, error)
}

// ActiveUser mirrors stats.ActiveUser without importing internal/stats,
// so callers can adapt any user-activity source to this contract.
type ActiveUser struct {
	UserID   string
	LastSeen string
}

// HistoryFetcher retrieves an adapter's message history for one scene,
// used only for short-term memory warm-up.
type HistoryFetcher interface {
	Recent(ctx context.Context, sceneKey string, n int) ([]shortterm.RawMessage, error)
}

// Scheduler owns the cron engine and every background job's dependencies.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	blacklist      BlacklistStore
	blacklistEvery time.Duration

	graph           GraphMaintainer
	aiCleanup       GraphCleanupFunc // nil if no knowledge_organizer-capable model is configured
	heuristicCleanup GraphCleanupFunc
	graphEvery      time.Duration
	graphUsersPerRun int

	memoryGC      MemoryGCRunner
	memoryGCEvery time.Duration

	activeUsers    ActiveUserSource
	history        HistoryFetcher
	shortTerm      *shortterm.Store
	warmupUsers    int
	warmupN        int

	mu      sync.Mutex
	running bool
}

// Option configures optional scheduler dependencies.
type Option func(*Scheduler)

// WithBlacklistSweep enables the blacklist-expiry sweep job.
func WithBlacklistSweep(store BlacklistStore, every time.Duration) Option {
	return func(s *Scheduler) { s.blacklist = store; s.blacklistEvery = every }
}

// WithGraphCleanup enables the knowledge-graph cleanup job. aiCleanup may
// be nil when no model is configured for it; the job then runs the
// heuristic pass alone.
func WithGraphCleanup(graph GraphMaintainer, aiCleanup, heuristicCleanup GraphCleanupFunc, every time.Duration, usersPerRun int) Option {
	return func(s *Scheduler) {
		s.graph = graph
		s.aiCleanup = aiCleanup
		s.heuristicCleanup = heuristicCleanup
		s.graphEvery = every
		s.graphUsersPerRun = usersPerRun
	}
}

// WithMemoryGC enables the long-term memory GC job.
func WithMemoryGC(runner MemoryGCRunner, every time.Duration) Option {
	return func(s *Scheduler) { s.memoryGC = runner; s.memoryGCEvery = every }
}

// WithWarmup enables short-term history warm-up on Start, restoring the
// cfg.WarmupN most recent messages for each of the cfg.WarmupUsers most
// recently active users.
func WithWarmup(activeUsers ActiveUserSource, history HistoryFetcher, shortTerm *shortterm.Store) Option {
	return func(s *Scheduler) {
		s.activeUsers = activeUsers
		s.history = history
		s.shortTerm = shortTerm
	}
}

// New builds a Scheduler. logger defaults to slog.Default() if nil.
func New(cfg config.SchedulerConfig, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:        cron.New(),
		logger:      logger,
		warmupUsers: cfg.WarmupUsers,
		warmupN:     cfg.WarmupN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers every configured job with the cron engine, runs the
// one-shot warm-up pass, and starts the engine. A second call while the
// scheduler is running does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if s.blacklist != nil && s.blacklistEvery > 0 {
		if err := s.addInterval(s.blacklistEvery, "blacklist_sweep", s.runBlacklistSweep); err != nil {
			return err
		}
	}
	if s.graph != nil && s.graphEvery > 0 {
		if err := s.addInterval(s.graphEvery, "graph_cleanup", s.runGraphCleanup); err != nil {
			return err
		}
	}
	if s.memoryGC != nil && s.memoryGCEvery > 0 {
		if err := s.addInterval(s.memoryGCEvery, "memory_gc", s.runMemoryGC); err != nil {
			return err
		}
	}

	if s.activeUsers != nil && s.history != nil && s.shortTerm != nil {
		s.runWarmup(ctx)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started")
	return nil
}

// Stop waits for in-flight jobs to finish, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out, jobs may still be running")
	}
	s.logger.Info("scheduler stopped")
}

// addInterval schedules fn to run every interval using a "@every" cron
// spec, which robfig/cron/v3 supports directly alongside standard
// 5-field expressions.
func (s *Scheduler) addInterval(interval time.Duration, name string, fn func(context.Context)) error {
	spec := "@every " + interval.String()
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("job starting", "job", name)
		start := time.Now()
		fn(context.Background())
		s.logger.Info("job finished", "job", name, "elapsed", time.Since(start))
	})
	return err
}
