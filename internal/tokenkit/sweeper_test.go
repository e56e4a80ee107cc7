package tokenkit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestNewSweeperValidatesArguments(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	store := NewMemoryRefreshTokenStore(clock)

	if _, err := NewSweeper(nil, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for missing store")
	}
	if _, err := NewSweeper(store, 0, nil, nil); err == nil {
		t.Fatalf("expected error for non-positive interval")
	}
	sweeper, buildErr := NewSweeper(store, time.Hour, zaptest.NewLogger(t), nil)
	if buildErr != nil {
		t.Fatalf("unexpected error: %v", buildErr)
	}
	if startErr := sweeper.Start(); startErr != nil {
		t.Fatalf("start error: %v", startErr)
	}
	if stopErr := sweeper.Stop(); stopErr != nil {
		t.Fatalf("stop error: %v", stopErr)
	}
}

func TestSweepRemovesOnlyExpiredTokens(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	store := NewMemoryRefreshTokenStore(clock)
	metrics := NewCounterMetrics()

	now := clock.Now()
	if err := store.Put(context.Background(), "user-short", "short-lived-token", now.Add(time.Minute)); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Put(context.Background(), "user-long", "long-lived-token", now.Add(time.Hour)); err != nil {
		t.Fatalf("put error: %v", err)
	}

	clock.Advance(2 * time.Minute)

	sweeper, buildErr := NewSweeper(store, time.Hour, zaptest.NewLogger(t), metrics)
	if buildErr != nil {
		t.Fatalf("unexpected error: %v", buildErr)
	}
	sweeper.sweep()

	if _, getErr := store.Get(context.Background(), "long-lived-token"); getErr != nil {
		t.Fatalf("live token should survive the sweep, got %v", getErr)
	}
	if _, getErr := store.Get(context.Background(), "short-lived-token"); getErr == nil {
		t.Fatalf("expired token should be gone after the sweep")
	}
	if metrics.Count(MetricSweepRemovedEntries) != 1 {
		t.Fatalf("expected sweep removal to be recorded")
	}
}
