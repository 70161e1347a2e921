package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

func testLimiter(t *testing.T, store CounterStore, limit int64) *Limiter {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	l, err := NewLimiter(log, store, limit, time.Minute)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	return l
}

func TestLimiterEnforcesLimit(t *testing.T) {
	l := testLimiter(t, NewMemoryStore(), 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "caller-a") {
			t.Fatalf("request %d under the limit rejected", i+1)
		}
	}
	if l.Allow(ctx, "caller-a") {
		t.Fatal("request over the limit allowed")
	}
}

func TestLimiterIsolatesCallers(t *testing.T) {
	l := testLimiter(t, NewMemoryStore(), 1)
	ctx := context.Background()

	if !l.Allow(ctx, "caller-a") {
		t.Fatal("first request rejected")
	}
	if !l.Allow(ctx, "caller-b") {
		t.Fatal("another caller must have its own window")
	}
	if l.Allow(ctx, "caller-a") {
		t.Fatal("caller-a exhausted its window")
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, fmt.Errorf("connection refused")
}

func TestLimiterFailsOpen(t *testing.T) {
	l := testLimiter(t, failingStore{}, 1)
	for i := 0; i < 5; i++ {
		if !l.Allow(context.Background(), "caller-a") {
			t.Fatal("limiter must fail open when the store is down")
		}
	}
}
