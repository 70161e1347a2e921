package singleflight

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	apperr "github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/errors"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// advisoryLockKey is the classifier shared by every process that runs the
// ingestion pipeline against the same database. One pipeline run at a time,
// cluster-wide.
const advisoryLockKey int64 = 7_74270_001

const leaseKey = "truthweave:pipeline:lease"

// releaseScript deletes the lease only if it still holds our token, so an
// expired lease taken over by another process is never clobbered.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// Guard serializes pipeline runs. Three layers, cheapest first: an in-process
// semaphore, a Postgres session advisory lock, and a Redis lease with a TTL.
// The database partial unique index on running rows remains the authority;
// the guard exists to fail fast before any stage work happens.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type guard struct {
	log      *logger.Logger
	local    *semaphore.Weighted
	db       *sql.DB
	rdb      *goredis.Client
	leaseTTL time.Duration
}

// NewGuard wires the layers that are available. db and rdb may each be nil;
// the in-process semaphore always applies.
func NewGuard(log *logger.Logger, db *sql.DB, rdb *goredis.Client, leaseTTL time.Duration) (Guard, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if leaseTTL <= 0 {
		leaseTTL = 90 * time.Second
	}
	return &guard{
		log:      log.With("service", "PipelineGuard"),
		local:    semaphore.NewWeighted(1),
		db:       db,
		rdb:      rdb,
		leaseTTL: leaseTTL,
	}, nil
}

func (g *guard) Acquire(ctx context.Context) (func(), error) {
	if !g.local.TryAcquire(1) {
		return nil, fmt.Errorf("another run is active in this process: %w", apperr.ErrBusy)
	}
	releaseLocal := func() { g.local.Release(1) }

	releaseDB, err := g.acquireAdvisory(ctx)
	if err != nil {
		releaseLocal()
		return nil, err
	}

	releaseLease, err := g.acquireLease(ctx)
	if err != nil {
		releaseDB()
		releaseLocal()
		return nil, err
	}

	return func() {
		releaseLease()
		releaseDB()
		releaseLocal()
	}, nil
}

// acquireAdvisory takes a session-level advisory lock on a connection pinned
// for the lifetime of the run. Session locks die with the session, so a
// crashed process cannot wedge the cluster.
func (g *guard) acquireAdvisory(ctx context.Context) (func(), error) {
	if g.db == nil {
		return func() {}, nil
	}
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock conn: %w", err)
	}
	var got bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !got {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock held elsewhere: %w", apperr.ErrBusy)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockKey); err != nil {
			g.log.Warn("advisory unlock failed; closing session releases it", "error", err)
		}
		_ = conn.Close()
	}, nil
}

func (g *guard) acquireLease(ctx context.Context) (func(), error) {
	if g.rdb == nil {
		return func() {}, nil
	}
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := g.rdb.SetNX(ctx, leaseKey, token, g.leaseTTL).Result()
	if err != nil {
		// Redis being down must not block ingestion; the advisory lock and
		// the partial unique index still hold the line.
		g.log.Warn("lease acquire failed; continuing without lease", "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("pipeline lease held: %w", apperr.ErrBusy)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.rdb, []string{leaseKey}, token).Err(); err != nil {
			g.log.Warn("lease release failed; TTL will expire it", "error", err)
		}
	}, nil
}
