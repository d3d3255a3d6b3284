package kgraph

import (
	"context"
	"fmt"

	"github.com/kurame123/confidant/internal/llmclient"
)

// MaintenanceResult summarizes one cleanup pass over a single user's graph.
type MaintenanceResult struct {
	Merged  int
	Deleted int
}

// RunAICleanup asks llm to find duplicate groups and useless entities
// among userID's nodes and applies the result (§4.3 scheduled AI-driven
// cleanup). It is a no-op if the user has fewer than two entities.
func RunAICleanup(ctx context.Context, s *Store, llm *llmclient.Client, userID string) (MaintenanceResult, error) {
	var res MaintenanceResult
	entities, err := s.Entities(ctx, userID)
	if err != nil {
		return res, err
	}
	if len(entities) < 2 {
		return res, nil
	}

	proposal, err := llm.ProposeGraphCleanup(ctx, entities)
	if err != nil {
		return res, fmt.Errorf("kgraph: ai cleanup %s: %w", userID, err)
	}

	existing := make(map[string]bool, len(entities))
	for _, e := range entities {
		existing[e] = true
	}

	for _, group := range proposal.DuplicateGroups {
		if !existing[group.Main] {
			continue
		}
		for _, dup := range group.Duplicates {
			if dup == group.Main || !existing[dup] {
				continue
			}
			if err := s.MergeDuplicate(ctx, userID, group.Main, dup); err != nil {
				return res, fmt.Errorf("kgraph: ai cleanup %s: merge %s<-%s: %w", userID, group.Main, dup, err)
			}
			existing[dup] = false
			res.Merged++
		}
	}

	for _, entity := range proposal.UselessEntities {
		if !existing[entity] {
			continue
		}
		if err := s.DeleteEntity(ctx, userID, entity); err != nil {
			return res, fmt.Errorf("kgraph: ai cleanup %s: delete %s: %w", userID, entity, err)
		}
		existing[entity] = false
		res.Deleted++
	}

	return res, nil
}

// RunHeuristicCleanup merges near-duplicate entities (case-insensitive
// match, mutual alias, or Levenshtein distance <=1 on short names) and
// prunes orphaned entities, without any model call (§4.3 heuristic
// cleanup pass). It is deterministic and safe to run far more often than
// the AI-driven pass.
func RunHeuristicCleanup(ctx context.Context, s *Store, userID string) (MaintenanceResult, error) {
	var res MaintenanceResult

	names, err := s.Entities(ctx, userID)
	if err != nil {
		return res, err
	}

	nodes := make([]*Node, 0, len(names))
	for _, name := range names {
		n, err := s.GetNode(ctx, userID, name)
		if err != nil {
			return res, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}

	merged := make(map[string]bool, len(nodes))
	for i := 0; i < len(nodes); i++ {
		if merged[nodes[i].Entity] {
			continue
		}
		for j := i + 1; j < len(nodes); j++ {
			if merged[nodes[j].Entity] {
				continue
			}
			if heuristicSameEntity(*nodes[i], *nodes[j]) {
				if err := s.MergeDuplicate(ctx, userID, nodes[i].Entity, nodes[j].Entity); err != nil {
					return res, fmt.Errorf("kgraph: heuristic cleanup %s: merge %s<-%s: %w", userID, nodes[i].Entity, nodes[j].Entity, err)
				}
				merged[nodes[j].Entity] = true
				res.Merged++
			}
		}
	}

	orphans, err := s.OrphanEntities(ctx, userID)
	if err != nil {
		return res, err
	}
	for _, entity := range orphans {
		if merged[entity] {
			continue
		}
		if err := s.DeleteEntity(ctx, userID, entity); err != nil {
			return res, fmt.Errorf("kgraph: heuristic cleanup %s: delete orphan %s: %w", userID, entity, err)
		}
		res.Deleted++
	}

	return res, nil
}
