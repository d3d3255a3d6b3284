package kgraph_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kurame123/confidant/internal/kgraph"
)

func openTestStore(t *testing.T) *kgraph.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kgraph.db")
	s, err := kgraph.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertNodeMergesAliases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNode(ctx, "u1", "person:小明", "person", []string{"小明哥"}, map[string]string{"city": "上海"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if err := s.UpsertNode(ctx, "u1", "person:小明", "person", []string{"明仔"}, map[string]string{"job": "工程师"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	node, err := s.GetNode(ctx, "u1", "person:小明")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if node == nil {
		t.Fatal("GetNode = nil, want node")
	}
	if len(node.Aliases) != 2 {
		t.Fatalf("Aliases = %v, want 2 merged aliases", node.Aliases)
	}
	if node.Properties["city"] != "上海" || node.Properties["job"] != "工程师" {
		t.Fatalf("Properties = %v, want both city and job", node.Properties)
	}
}

func TestUpsertEdgeIncrementsWeight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEdge(ctx, "u1", "person:小明", "place:上海", "lives_in", "", time.Time{}); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if err := s.UpsertEdge(ctx, "u1", "person:小明", "place:上海", "lives_in", "", time.Time{}); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	edges, err := s.Edges(ctx, "u1", "person:小明")
	if err != nil {
		t.Fatalf("Edges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("len(edges) = %d, want 1", len(edges))
	}
	want := 1.0 + kgraph.WeightIncrement
	if edges[0].Weight != want {
		t.Fatalf("Weight = %v, want %v", edges[0].Weight, want)
	}
}

func TestNeighborsRespectsHopLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	edges := [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}}
	for _, e := range edges {
		if err := s.UpsertEdge(ctx, "u1", e[0], e[1], "knows", "", time.Time{}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}

	got, err := s.Neighbors(ctx, "u1", []string{"a"}, 1)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 || got[0].Target != "b" {
		t.Fatalf("Neighbors(hops=1) = %+v, want just a->b", got)
	}

	got2, err := s.Neighbors(ctx, "u1", []string{"a"}, 2)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got2) != 2 {
		t.Fatalf("Neighbors(hops=2) len = %d, want 2", len(got2))
	}
}

func TestRetrieveFindsByAlias(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNode(ctx, "u1", "person:小明", "person", []string{"明仔"}, nil); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if err := s.UpsertEdge(ctx, "u1", "person:小明", "place:上海", "lives_in", "", time.Time{}); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	text, err := s.Retrieve(ctx, "u1", []string{"明仔"}, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if text == "" {
		t.Fatal("Retrieve returned empty text for a matched alias")
	}
}

func TestMergeDuplicateMigratesEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEdge(ctx, "u1", "person:小明", "place:上海", "lives_in", "", time.Time{}); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if err := s.UpsertNode(ctx, "u1", "person:小明明", "person", nil, nil); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	if err := s.MergeDuplicate(ctx, "u1", "person:小明明", "person:小明"); err != nil {
		t.Fatalf("MergeDuplicate: %v", err)
	}

	edges, err := s.Edges(ctx, "u1", "person:小明明")
	if err != nil {
		t.Fatalf("Edges: %v", err)
	}
	if len(edges) != 1 || edges[0].Source != "person:小明明" {
		t.Fatalf("Edges after merge = %+v, want migrated source", edges)
	}

	node, err := s.GetNode(ctx, "u1", "person:小明")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if node != nil {
		t.Fatal("duplicate node still present after merge")
	}
}

func TestHeuristicKeywordsExtractsHanAndLatin(t *testing.T) {
	got := kgraph.HeuristicKeywords("小明今天去了Shanghai出差")
	if len(got) == 0 {
		t.Fatal("HeuristicKeywords returned nothing")
	}
}
