package affection_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kurame123/confidant/internal/affection"
)

func openTestStore(t *testing.T) *affection.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "affection.db")
	s, err := affection.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScoreToLevelBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		level int
	}{
		{-1, -2}, {0, -2}, {1.0, -2}, {1.1, -1}, {7.1, 5}, {13.0, 13}, {99, 13},
	}
	for _, c := range cases {
		if got := affection.ScoreToLevel(c.score); got != c.level {
			t.Errorf("ScoreToLevel(%v) = %d, want %d", c.score, got, c.level)
		}
	}
}

func TestGetOrCreateStartsAtHate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	score, level, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if score != 0.0 || level != -2 {
		t.Fatalf("new user = (%v, %v), want (0.0, -2)", score, level)
	}
}

func TestUpdateRaisesScoreOnPositiveMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.Update(ctx, "u1", "谢谢你，今天聊得真开心~", "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got <= 0.0 {
		t.Fatalf("score after positive turn = %v, want > 0", got)
	}
}

func TestUpdateLowersScoreOnHostileMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Push the score up first so a negative turn has room to lower it.
	for i := 0; i < 10; i++ {
		if _, err := s.Update(ctx, "u1", "谢谢你超喜欢你", ""); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	before, _, err := s.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	after, err := s.Update(ctx, "u1", "滚，讨厌你", "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if after >= before {
		t.Fatalf("score after hostile turn = %v, want < %v", after, before)
	}
}

func TestTemperatureForNewUserFallsBackToDefault(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.TemperatureFor(ctx, "u1", 0.8, map[int]float64{5: 1.5})
	if err != nil {
		t.Fatalf("TemperatureFor: %v", err)
	}
	if got != 0.8 {
		t.Fatalf("TemperatureFor(new user) = %v, want default 0.8", got)
	}
}

func TestAdminSetScoreClampsRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.GetOrCreate(ctx, "u1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	info, err := s.AdminSetScore(ctx, "u1", 999)
	if err != nil {
		t.Fatalf("AdminSetScore: %v", err)
	}
	if info.Score != 13.0 {
		t.Fatalf("AdminSetScore(999).Score = %v, want clamped 13.0", info.Score)
	}
}
