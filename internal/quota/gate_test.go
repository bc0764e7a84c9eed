package quota

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestGate(t *testing.T, clk *clock, limit int) (*Gate, *entitlements.Store) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	store, err := entitlements.NewStore(entitlements.StoreParams{
		Logger:    logg,
		FreeLimit: limit,
		Now:       clk.Now,
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	gate, err := NewGate(GateParams{Store: store, Now: clk.Now})
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	return gate, store
}

func TestPremiumBypassesCounter(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}
	gate, store := newTestGate(t, clk, 5)

	store.Grant(ctx, 1, 24*time.Hour, "test")

	for i := 0; i < 50; i++ {
		if d := gate.CheckAndConsume(ctx, 1); d != DecisionAllowedPremium {
			t.Fatalf("call %d: expected premium allow, got %s", i, d)
		}
	}
	if rec := store.GetOrCreate(ctx, 1); rec.FreeCount != 0 {
		t.Fatalf("premium access must not touch free_count, got %d", rec.FreeCount)
	}
}

func TestFreeQuotaExhaustionAndReset(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}
	gate, store := newTestGate(t, clk, 5)

	for i := 0; i < 4; i++ {
		if d := gate.CheckAndConsume(ctx, 2); d != DecisionAllowedFree {
			t.Fatalf("call %d: expected free allow, got %s", i, d)
		}
	}

	// Fifth call lands exactly on the limit.
	if d := gate.CheckAndConsume(ctx, 2); d != DecisionAllowedFree {
		t.Fatalf("fifth call should be allowed, got %s", d)
	}
	if rec := store.GetOrCreate(ctx, 2); rec.FreeCount != 5 {
		t.Fatalf("expected free_count 5, got %d", rec.FreeCount)
	}

	if d := gate.CheckAndConsume(ctx, 2); d != DecisionDenied {
		t.Fatalf("sixth call should be denied, got %s", d)
	}

	store.ResetFree(ctx, 2)
	if d := gate.CheckAndConsume(ctx, 2); d != DecisionAllowedFree {
		t.Fatalf("call after admin reset should be allowed, got %s", d)
	}
	if rec := store.GetOrCreate(ctx, 2); rec.FreeCount != 1 {
		t.Fatalf("expected free_count 1 after reset, got %d", rec.FreeCount)
	}
}

func TestExpiredPremiumFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	clk := &clock{now: now}
	gate, store := newTestGate(t, clk, 5)

	store.Grant(ctx, 3, time.Hour, "test")
	clk.Set(now.Add(2 * time.Hour))

	if d := gate.CheckAndConsume(ctx, 3); d != DecisionAllowedFree {
		t.Fatalf("expected free allow after premium lapsed, got %s", d)
	}
	if rec := store.GetOrCreate(ctx, 3); rec.FreeCount != 1 {
		t.Fatalf("expected free_count 1, got %d", rec.FreeCount)
	}
}

func TestDescribeDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}
	gate, store := newTestGate(t, clk, 5)

	gate.CheckAndConsume(ctx, 4)
	for i := 0; i < 10; i++ {
		status := gate.Describe(ctx, 4)
		if status.FreeLeft != 4 {
			t.Fatalf("describe mutated state: free_left %d", status.FreeLeft)
		}
		if status.Premium {
			t.Fatal("user should not be premium")
		}
		if status.ExpiresAt != nil {
			t.Fatal("expires_at should be absent for non-premium users")
		}
	}

	until := store.Grant(ctx, 4, 24*time.Hour, "test")
	status := gate.Describe(ctx, 4)
	if !status.Premium {
		t.Fatal("expected premium after grant")
	}
	if status.ExpiresAt == nil || !status.ExpiresAt.Equal(until) {
		t.Fatalf("unexpected expires_at %v", status.ExpiresAt)
	}
}
