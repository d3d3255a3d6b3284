package blacklist_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kurame123/confidant/internal/blacklist"
)

func openTestStore(t *testing.T) *blacklist.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guard.db")
	s, err := blacklist.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBanAndIsBlocked(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Ban(ctx, "u1", 10, "injection attempt", ""); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	blocked, err := s.IsBlocked(ctx, "u1")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatal("IsBlocked = false, want true right after Ban")
	}
}

func TestBanIncrementsHitCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b1, err := s.Ban(ctx, "u1", 10, "reason1", "")
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if b1.HitCount != 1 {
		t.Fatalf("first ban HitCount = %d, want 1", b1.HitCount)
	}

	b2, err := s.Ban(ctx, "u1", 10, "reason2", "")
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if b2.HitCount != 2 {
		t.Fatalf("second ban HitCount = %d, want 2", b2.HitCount)
	}
}

func TestUnban(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Ban(ctx, "u1", 10, "reason", ""); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	ok, err := s.Unban(ctx, "u1")
	if err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if !ok {
		t.Fatal("Unban = false, want true")
	}

	blocked, err := s.IsBlocked(ctx, "u1")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Fatal("IsBlocked = true after Unban, want false")
	}
}

func TestExpiredBanIsLazilyCleaned(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Ban(ctx, "u1", -1, "old", ""); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	blocked, err := s.IsBlocked(ctx, "u1")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Fatal("IsBlocked = true for an expired ban, want false")
	}

	_, found, err := s.GetInfo(ctx, "u1")
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if found {
		t.Fatal("GetInfo found a row that should have been lazily deleted")
	}
}

func TestExtend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before, err := s.Ban(ctx, "u1", 5, "reason", "")
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}

	after, ok, err := s.Extend(ctx, "u1", 30)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if !ok {
		t.Fatal("Extend ok = false, want true")
	}
	if !after.ExpiresAt.After(before.ExpiresAt) {
		t.Fatalf("Extend did not push expiry forward: before=%v after=%v", before.ExpiresAt, after.ExpiresAt)
	}
}

func TestCleanupExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Ban(ctx, "u1", -1, "old", ""); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("CleanupExpired removed %d rows, want 1", n)
	}
}
