// Package admission gates new generation work per user: a cooldown between
// successive requests and a periodic quota. Both are evaluated before a job
// may be enqueued; neither is ever retried automatically.
package admission

import (
	"context"
	"fmt"
	"time"
)

// RoleElevated bypasses admission entirely.
const RoleElevated = "admin"

// CooldownStatus reports whether a user's cooldown is active and for how
// much longer.
type CooldownStatus struct {
	Active           bool  `json:"cooldownActive"`
	RemainingSeconds int64 `json:"remainingSeconds"`
}

// QuotaStatus reports a user's position in the current quota window.
type QuotaStatus struct {
	Allowed  bool      `json:"allowed"`
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Limit error kinds.
const (
	KindCooldown = "cooldown"
	KindQuota    = "quota"
)

// LimitError is the structured "too many requests" condition. It carries
// machine-readable retry metadata so callers can present an accurate hint.
type LimitError struct {
	Kind              string       `json:"kind"`
	RetryAfterSeconds int64        `json:"retryAfterSeconds"`
	Quota             *QuotaStatus `json:"quota,omitempty"`
}

func (e *LimitError) Error() string {
	if e.Kind == KindQuota {
		return fmt.Sprintf("generation quota exhausted (%d/%d), resets in %ds", e.Quota.Used, e.Quota.Limit, e.RetryAfterSeconds)
	}
	return fmt.Sprintf("cooldown active, retry in %ds", e.RetryAfterSeconds)
}

// Store is the shared per-user admission state. IncrementWithinLimit must be
// atomic: two concurrent calls may never both pass a nearly-exhausted quota.
type Store interface {
	CooldownRemaining(ctx context.Context, userID string) (time.Duration, error)
	SetCooldown(ctx context.Context, userID string, d time.Duration) error
	IncrementWithinLimit(ctx context.Context, userID string, limit int, window time.Duration) (used int, allowed bool, resetsIn time.Duration, err error)
	QuotaUsage(ctx context.Context, userID string) (used int, resetsIn time.Duration, err error)
}

// Controller evaluates the admission policy.
type Controller struct {
	store    Store
	cooldown time.Duration
	limit    int
	window   time.Duration
}

func NewController(store Store, cooldown time.Duration, limit int, window time.Duration) *Controller {
	return &Controller{store: store, cooldown: cooldown, limit: limit, window: window}
}

// CheckCooldown reports whether the user's cooldown is still running.
func (c *Controller) CheckCooldown(ctx context.Context, userID string) (CooldownStatus, error) {
	remaining, err := c.store.CooldownRemaining(ctx, userID)
	if err != nil {
		return CooldownStatus{}, fmt.Errorf("cooldown lookup failed: %w", err)
	}
	if remaining <= 0 {
		return CooldownStatus{}, nil
	}
	return CooldownStatus{Active: true, RemainingSeconds: ceilSeconds(remaining)}, nil
}

// CheckGenerationLimit reports the user's quota position without consuming
// any of it.
func (c *Controller) CheckGenerationLimit(ctx context.Context, userID string) (QuotaStatus, error) {
	used, resetsIn, err := c.store.QuotaUsage(ctx, userID)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("quota lookup failed: %w", err)
	}
	if resetsIn <= 0 {
		resetsIn = c.window
	}
	return QuotaStatus{
		Allowed:  used < c.limit,
		Used:     used,
		Limit:    c.limit,
		ResetsAt: time.Now().Add(resetsIn),
	}, nil
}

// SetCooldown starts a fresh cooldown for the user.
func (c *Controller) SetCooldown(ctx context.Context, userID string) error {
	return c.store.SetCooldown(ctx, userID, c.cooldown)
}

// Admit runs the full policy in its fixed order: elevated-role bypass,
// cooldown (cheapest rejection first), quota consume, fresh cooldown.
// The quota check and its increment are one atomic operation, so an
// admission is quota-counted exactly once and two concurrent requests can
// never both squeeze through the last slot.
func (c *Controller) Admit(ctx context.Context, userID, role string) error {
	if role == RoleElevated {
		return nil
	}

	cd, err := c.CheckCooldown(ctx, userID)
	if err != nil {
		return err
	}
	if cd.Active {
		return &LimitError{Kind: KindCooldown, RetryAfterSeconds: cd.RemainingSeconds}
	}

	used, allowed, resetsIn, err := c.store.IncrementWithinLimit(ctx, userID, c.limit, c.window)
	if err != nil {
		return fmt.Errorf("quota check failed: %w", err)
	}
	if !allowed {
		return &LimitError{
			Kind:              KindQuota,
			RetryAfterSeconds: ceilSeconds(resetsIn),
			Quota: &QuotaStatus{
				Used:     used,
				Limit:    c.limit,
				ResetsAt: time.Now().Add(resetsIn),
			},
		}
	}

	if err := c.SetCooldown(ctx, userID); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

func ceilSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
