package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kurame123/confidant/internal/adapter"
	"github.com/kurame123/confidant/internal/adminhttp"
	"github.com/kurame123/confidant/internal/affection"
	"github.com/kurame123/confidant/internal/blacklist"
	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/embed"
	"github.com/kurame123/confidant/internal/guard"
	"github.com/kurame123/confidant/internal/kgraph"
	"github.com/kurame123/confidant/internal/knowledge"
	"github.com/kurame123/confidant/internal/kv"
	"github.com/kurame123/confidant/internal/llmclient"
	"github.com/kurame123/confidant/internal/memstore"
	"github.com/kurame123/confidant/internal/orchestrator"
	"github.com/kurame123/confidant/internal/persona"
	"github.com/kurame123/confidant/internal/scheduler"
	"github.com/kurame123/confidant/internal/shortterm"
	"github.com/kurame123/confidant/internal/splitter"
	"github.com/kurame123/confidant/internal/stats"
	"github.com/kurame123/confidant/internal/tracelog"
	"github.com/kurame123/confidant/internal/vecstore"
)

// daemon owns every long-lived component constructed by compose and
// coordinates their lifecycle. Per spec.md §9's root-composition note,
// every service is built exactly once here and handed down by reference;
// no component reaches back up to the daemon or to global state.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	affection *affection.Store
	blacklist *blacklist.Store
	graph     *kgraph.Store
	stats     *stats.Store
	memory    *memstore.Store
	knowledge *knowledge.Store
	kbIndex   *kbIndex

	llm      *llmclient.Client
	guard    *guard.Guard
	personaG *persona.Guard
	splitter *splitter.Splitter
	short    *shortterm.Store
	trace    *tracelog.Logger

	orch      *orchestrator.Orchestrator
	scheduler *scheduler.Scheduler
	admin     *adminhttp.Server
	adapter   adapter.Adapter
}

// compose builds every service exactly once from the loaded config.
func compose(configPath, envPath string, logger *slog.Logger) (*daemon, error) {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("compose: create data dir: %w", err)
	}

	d := &daemon{cfg: cfg, logger: logger}

	d.affection, err = affection.Open(filepath.Join(cfg.DataDir, "affection.db"))
	if err != nil {
		return nil, fmt.Errorf("compose: affection: %w", err)
	}

	blPath := cfg.Blacklist.DBPath
	if blPath == "" {
		blPath = filepath.Join(cfg.DataDir, "guard.db")
	}
	d.blacklist, err = blacklist.Open(blPath)
	if err != nil {
		return nil, fmt.Errorf("compose: blacklist: %w", err)
	}

	d.graph, err = kgraph.Open(filepath.Join(cfg.DataDir, "knowledge_graph.db"))
	if err != nil {
		return nil, fmt.Errorf("compose: graph: %w", err)
	}

	d.stats, err = stats.Open(filepath.Join(cfg.DataDir, "stats.db"))
	if err != nil {
		return nil, fmt.Errorf("compose: stats: %w", err)
	}

	d.llm, err = llmclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("compose: llm client: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("compose: embedder: %w", err)
	}

	d.memory = memstore.New(filepath.Join(cfg.DataDir, "memories"), embedder, cfg.VecStore.Backend, cfg.MemoryGC, d.llm, logger)

	d.kbIndex, err = openKBIndex(cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("compose: knowledge base: %w", err)
	}
	d.knowledge = knowledge.Open(d.kbIndex.store, embedder, knowledge.NewPersistentIndex(d.kbIndex.vec))

	d.guard = guard.New(d.llm, d.blacklist, cfg.Guard)
	d.personaG = persona.New(d.llm, cfg.Persona.DriftPhrases, cfg.Persona.GreetingDefault)
	d.splitter = splitter.New(d.llm, cfg.Splitter)
	d.short = shortterm.NewStore()

	if dir := cfg.DataDir; dir != "" {
		d.trace = tracelog.New(filepath.Join(dir, "trace"))
	}

	d.orch = orchestrator.New(orchestrator.Deps{
		Affection:     d.affection,
		Guard:         d.guard,
		Blacklist:     d.blacklist,
		Graph:         d.graph,
		Memory:        d.memory,
		KnowledgeBase: d.knowledge,
		Persona:       d.personaG,
		ShortTerm:     d.short,
		LLM:           d.llm,
		Trace:         d.trace,
		Logger:        logger,
	}, cfg)

	d.admin, err = adminhttp.New(adminhttp.Deps{
		Affection: d.affection,
		Blacklist: d.blacklist,
		Graph:     d.graph,
		Stats:     d.stats,
		Logger:    logger,
	}, cfg.AdminHTTP, map[string]string{
		"affection":       filepath.Join(cfg.DataDir, "affection.db"),
		"guard":           blPath,
		"stats":           filepath.Join(cfg.DataDir, "stats.db"),
		"knowledge_graph": filepath.Join(cfg.DataDir, "knowledge_graph.db"),
	})
	if err != nil {
		return nil, fmt.Errorf("compose: admin http: %w", err)
	}

	d.adapter = newConsoleAdapter(os.Stdin, os.Stdout)

	d.scheduler = scheduler.New(cfg.Scheduler, logger,
		scheduler.WithBlacklistSweep(d.blacklist, cfg.Blacklist.SweepEvery),
		scheduler.WithGraphCleanup(d.graph, aiCleanupFunc(d.graph, d.llm), heuristicCleanupFunc(d.graph), cfg.GraphGC.Every, cfg.GraphGC.UsersPerRun),
		scheduler.WithMemoryGC(d.memory, cfg.MemoryGC.Every),
		scheduler.WithWarmup(activeUserAdapter{d.stats}, newHistoryFetcher(d.adapter, d.llm), d.short),
	)

	return d, nil
}

func newEmbedder(cfg *config.Config) (embedderWithBinding, error) {
	binding, ok := cfg.Models[config.RoleEmbedding]
	if !ok {
		return nil, fmt.Errorf("no model bound to role %q", config.RoleEmbedding)
	}
	provider, ok := cfg.Providers[binding.Provider]
	if !ok {
		return nil, fmt.Errorf("embedding role references unknown provider %q", binding.Provider)
	}
	return embed.NewOpenAI(provider.APIKey, embed.WithBaseURL(provider.APIBase), embed.WithModel(binding.Model)), nil
}

// embedderWithBinding is the subset of embed.Embedder every downstream
// consumer (memstore, knowledge) needs; named here only to keep
// newEmbedder's return type readable.
type embedderWithBinding = interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

func aiCleanupFunc(g *kgraph.Store, llm *llmclient.Client) scheduler.GraphCleanupFunc {
	if !llm.HasRole(config.RoleUtility) {
		return nil
	}
	return func(ctx context.Context, userID string) error {
		_, err := kgraph.RunAICleanup(ctx, g, llm, userID)
		return err
	}
}

func heuristicCleanupFunc(g *kgraph.Store) scheduler.GraphCleanupFunc {
	return func(ctx context.Context, userID string) error {
		_, err := kgraph.RunHeuristicCleanup(ctx, g, userID)
		return err
	}
}

// kbIndex bundles the global knowledge base's backing KV store and
// persistent vector index, both owned by the daemon for shutdown.
type kbIndex struct {
	store kv.Store
	vec   *persistentIndex
}

func openKBIndex(cfg *config.Config, embedder embedderWithBinding) (*kbIndex, error) {
	store, err := kv.OpenSQLite(kv.SQLiteOptions{Path: filepath.Join(cfg.DataDir, "knowledge.db")})
	if err != nil {
		return nil, fmt.Errorf("kv store: %w", err)
	}
	vecPath := filepath.Join(cfg.DataDir, "knowledge.idx")
	idx, err := loadOrNewHNSW(vecPath, embedder.Dimension())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}
	return &kbIndex{store: store, vec: &persistentIndex{Index: idx, path: vecPath}}, nil
}

func loadOrNewHNSW(path string, dim int) (vecstore.Index, error) {
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		return vecstore.LoadHNSW(f)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	return vecstore.NewHNSW(vecstore.HNSWConfig{Dim: dim}), nil
}

// persistentIndex wraps a vecstore.Index with knowledge.NewPersistentIndex
// to satisfy recall.VectorIndex, and remembers where to save on Close.
type persistentIndex struct {
	vecstore.Index
	path string
}

func (p *persistentIndex) Close() error {
	f, err := os.Create(p.path)
	if err != nil {
		return fmt.Errorf("save knowledge vector index: %w", err)
	}
	defer f.Close()
	if h, ok := p.Index.(*vecstore.HNSW); ok {
		return h.Save(f)
	}
	return nil
}

// Run starts the scheduler and admin HTTP server, then drives the
// console adapter's message loop until ctx is cancelled.
func (d *daemon) Run(ctx context.Context) error {
	if err := d.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go func() {
		if err := d.admin.ListenAndServe(); err != nil {
			d.logger.Error("admin http server stopped", "error", err)
		}
	}()

	return runMessageLoop(ctx, d)
}

// Close releases every store and index, best-effort, logging failures
// rather than aborting shutdown partway through.
func (d *daemon) Close() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.scheduler.Stop(stopCtx)
	d.admin.Close()

	closers := []struct {
		name string
		fn   func() error
	}{
		{"affection", d.affection.Close},
		{"blacklist", d.blacklist.Close},
		{"graph", d.graph.Close},
		{"stats", d.stats.Close},
		{"memory", d.memory.Close},
		{"kb vector index", d.kbIndex.vec.Close},
		{"kb store", d.kbIndex.store.Close},
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			d.logger.Warn("shutdown: close failed", "component", c.name, "error", err)
		}
	}
}
