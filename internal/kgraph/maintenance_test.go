package kgraph_test

import (
	"context"
	"testing"
	"time"

	"github.com/kurame123/confidant/internal/kgraph"
)

func TestRunHeuristicCleanupMergesCaseVariants(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNode(ctx, "u1", "Shanghai", "place", nil, nil); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if err := s.UpsertNode(ctx, "u1", "shanghai", "place", nil, nil); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if err := s.UpsertEdge(ctx, "u1", "person:x", "shanghai", "lives_in", "", time.Time{}); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	res, err := kgraph.RunHeuristicCleanup(ctx, s, "u1")
	if err != nil {
		t.Fatalf("RunHeuristicCleanup: %v", err)
	}
	if res.Merged != 1 {
		t.Fatalf("Merged = %d, want 1", res.Merged)
	}

	entities, err := s.Entities(ctx, "u1")
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	// UpsertEdge creates no node, so person:x is not an entity.
	if len(entities) != 1 {
		t.Fatalf("Entities after merge = %v, want 1 (Shanghai)", entities)
	}
}

func TestRunHeuristicCleanupDeletesOrphans(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNode(ctx, "u1", "lonely", "misc", nil, nil); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if err := s.UpsertEdge(ctx, "u1", "person:x", "place:y", "knows", "", time.Time{}); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	res, err := kgraph.RunHeuristicCleanup(ctx, s, "u1")
	if err != nil {
		t.Fatalf("RunHeuristicCleanup: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", res.Deleted)
	}

	node, err := s.GetNode(ctx, "u1", "lonely")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if node != nil {
		t.Fatal("orphan entity still present after cleanup")
	}
}
