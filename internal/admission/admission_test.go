package admission

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestController(limit int) (*Controller, *MemoryStore, *time.Time) {
	store := NewMemoryStore()
	current := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return current })
	ctrl := NewController(store, 5*time.Minute, limit, 7*24*time.Hour)
	return ctrl, store, &current
}

func TestCheckCooldown_ActiveAfterSet(t *testing.T) {
	ctrl, _, _ := newTestController(5)
	ctx := context.Background()

	status, err := ctrl.CheckCooldown(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckCooldown: %v", err)
	}
	if status.Active {
		t.Fatal("expected no cooldown before SetCooldown")
	}

	if err := ctrl.SetCooldown(ctx, "user-1"); err != nil {
		t.Fatalf("SetCooldown: %v", err)
	}

	status, err = ctrl.CheckCooldown(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckCooldown: %v", err)
	}
	if !status.Active {
		t.Fatal("expected active cooldown immediately after SetCooldown")
	}
	if status.RemainingSeconds <= 0 {
		t.Fatalf("expected remainingSeconds > 0, got %d", status.RemainingSeconds)
	}
}

func TestCheckCooldown_ExpiresAtActiveUntil(t *testing.T) {
	ctrl, _, now := newTestController(5)
	ctx := context.Background()

	if err := ctrl.SetCooldown(ctx, "user-1"); err != nil {
		t.Fatalf("SetCooldown: %v", err)
	}

	*now = now.Add(5 * time.Minute)

	status, err := ctrl.CheckCooldown(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckCooldown: %v", err)
	}
	if status.Active {
		t.Fatal("expected cooldown inactive once now >= activeUntil")
	}
}

func TestAdmit_QuotaExhaustionAndReset(t *testing.T) {
	ctrl, _, now := newTestController(5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		// Step past the cooldown between admissions; only quota is under test.
		*now = now.Add(6 * time.Minute)
		if err := ctrl.Admit(ctx, "user-1", ""); err != nil {
			t.Fatalf("admission %d: %v", i+1, err)
		}
	}

	*now = now.Add(6 * time.Minute)
	err := ctrl.Admit(ctx, "user-1", "")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError on sixth admission, got %v", err)
	}
	if limitErr.Kind != KindQuota {
		t.Fatalf("expected quota rejection, got %s", limitErr.Kind)
	}
	if limitErr.Quota == nil || limitErr.Quota.Used != 5 || limitErr.Quota.Limit != 5 {
		t.Fatalf("expected used=5 limit=5 in rejection, got %+v", limitErr.Quota)
	}
	if limitErr.RetryAfterSeconds <= 0 {
		t.Fatal("expected retry hint on quota rejection")
	}

	// After the window passes, used resets to zero.
	*now = now.Add(7 * 24 * time.Hour)
	quota, err := ctrl.CheckGenerationLimit(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckGenerationLimit: %v", err)
	}
	if quota.Used != 0 || !quota.Allowed {
		t.Fatalf("expected fresh window after reset, got %+v", quota)
	}
	if err := ctrl.Admit(ctx, "user-1", ""); err != nil {
		t.Fatalf("admission after reset: %v", err)
	}
}

func TestAdmit_CooldownRejectedBeforeQuota(t *testing.T) {
	ctrl, _, _ := newTestController(5)
	ctx := context.Background()

	if err := ctrl.Admit(ctx, "user-1", ""); err != nil {
		t.Fatalf("first admission: %v", err)
	}

	err := ctrl.Admit(ctx, "user-1", "")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Kind != KindCooldown {
		t.Fatalf("expected cooldown rejection, got %s", limitErr.Kind)
	}
	if limitErr.RetryAfterSeconds <= 0 {
		t.Fatal("expected retry hint on cooldown rejection")
	}

	// The cooldown rejection must not have consumed quota.
	quota, err := ctrl.CheckGenerationLimit(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckGenerationLimit: %v", err)
	}
	if quota.Used != 1 {
		t.Fatalf("expected used=1 after one admission and one cooldown rejection, got %d", quota.Used)
	}
}

func TestAdmit_ElevatedRoleBypass(t *testing.T) {
	ctrl, _, _ := newTestController(1)
	ctx := context.Background()

	// An elevated role never consumes quota and ignores cooldowns.
	for i := 0; i < 10; i++ {
		if err := ctrl.Admit(ctx, "admin-1", RoleElevated); err != nil {
			t.Fatalf("elevated admission %d: %v", i+1, err)
		}
	}
	quota, err := ctrl.CheckGenerationLimit(ctx, "admin-1")
	if err != nil {
		t.Fatalf("CheckGenerationLimit: %v", err)
	}
	if quota.Used != 0 {
		t.Fatalf("bypass must not consume quota, got used=%d", quota.Used)
	}
}

func TestAdmit_SuccessSetsFreshCooldown(t *testing.T) {
	ctrl, _, _ := newTestController(5)
	ctx := context.Background()

	if err := ctrl.Admit(ctx, "user-1", ""); err != nil {
		t.Fatalf("admission: %v", err)
	}
	status, err := ctrl.CheckCooldown(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckCooldown: %v", err)
	}
	if !status.Active {
		t.Fatal("expected cooldown active right after a successful admission")
	}
}

func TestMemoryStore_IncrementIsAtomicAtBoundary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Exactly limit increments succeed, regardless of interleaving.
	allowed := 0
	done := make(chan bool)
	for i := 0; i < 20; i++ {
		go func() {
			_, ok, _, _ := store.IncrementWithinLimit(ctx, "u", 5, time.Hour)
			done <- ok
		}()
	}
	for i := 0; i < 20; i++ {
		if <-done {
			allowed++
		}
	}
	if allowed != 5 {
		t.Fatalf("expected exactly 5 admissions through the limit, got %d", allowed)
	}
}
