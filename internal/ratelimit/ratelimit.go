package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// CounterStore is a windowed request counter. Externalizing it keeps the
// limit correct across process restarts and horizontal scale; the in-memory
// implementation exists for tests and single-node deployments.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisStore struct {
	rdb *goredis.Client
}

func NewRedisStore(rdb *goredis.Client) CounterStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type memoryStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
}

func NewMemoryStore() CounterStore {
	return &memoryStore{counts: map[string]int64{}, expires: map[string]time.Time{}}
}

func (s *memoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.expires[key]; ok && now.After(exp) {
		delete(s.counts, key)
		delete(s.expires, key)
	}
	if _, ok := s.expires[key]; !ok {
		s.expires[key] = now.Add(window)
	}
	s.counts[key]++
	return s.counts[key], nil
}

// Limiter is a windowed per-caller request limiter. A store failure fails
// open: rejecting traffic because the counter is down is worse than briefly
// not limiting it.
type Limiter struct {
	log    *logger.Logger
	store  CounterStore
	limit  int64
	window time.Duration
}

func NewLimiter(log *logger.Logger, store CounterStore, limit int64, window time.Duration) (*Limiter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		log:    log.With("service", "RateLimiter"),
		store:  store,
		limit:  limit,
		window: window,
	}, nil
}

func (l *Limiter) Allow(ctx context.Context, callerID string) bool {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("truthweave:rl:%s:%d", callerID, bucket)
	n, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.log.Warn("rate limit counter unavailable; allowing request", "caller", callerID, "error", err)
		return true
	}
	return n <= l.limit
}
