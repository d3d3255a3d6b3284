package scheduler

import "context"

func (s *Scheduler) runBlacklistSweep(ctx context.Context) {
	n, err := s.blacklist.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("blacklist sweep failed", "error", err)
		return
	}
	s.logger.Info("blacklist sweep removed expired bans", "count", n)
}

func (s *Scheduler) runGraphCleanup(ctx context.Context) {
	users, err := s.graph.UsersWithNodes(ctx, s.graphUsersPerRun)
	if err != nil {
		s.logger.Error("graph cleanup: list users failed", "error", err)
		return
	}

	for _, userID := range users {
		if s.heuristicCleanup != nil {
			if err := s.heuristicCleanup(ctx, userID); err != nil {
				s.logger.Error("graph cleanup: heuristic pass failed", "user", userID, "error", err)
			}
		}
		if s.aiCleanup != nil {
			if err := s.aiCleanup(ctx, userID); err != nil {
				s.logger.Error("graph cleanup: ai pass failed", "user", userID, "error", err)
			}
		}
	}
	s.logger.Info("graph cleanup pass complete", "users", len(users))
}

func (s *Scheduler) runMemoryGC(ctx context.Context) {
	if err := s.memoryGC.RunGC(ctx); err != nil {
		s.logger.Error("memory gc failed", "error", err)
		return
	}
	s.logger.Info("memory gc complete")
}

// runWarmup replays each recently active user's history into short-term
// memory once at process start (spec.md §4.11), so the first turn after
// a restart already has recent-dialogue context instead of starting cold.
func (s *Scheduler) runWarmup(ctx context.Context) {
	users, err := s.activeUsers.GetRecentActiveUsers(ctx, s.warmupUsers)
	if err != nil {
		s.logger.Error("warmup: list active users failed", "error", err)
		return
	}

	for _, u := range users {
		msgs, err := s.history.Recent(ctx, u.UserID, s.warmupN)
		if err != nil {
			s.logger.Warn("warmup: fetch history failed", "user", u.UserID, "error", err)
			continue
		}
		s.shortTerm.Restore(u.UserID, msgs)
	}
	s.logger.Info("warmup complete", "users", len(users))
}
