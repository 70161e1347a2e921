package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/db"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/documents"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/graph"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/data/repos/runs"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/graphmirror"
	httpserver "github.com/HMarcusWH/company-truth-weave-sub000/internal/http"
	httpH "github.com/HMarcusWH/company-truth-weave-sub000/internal/http/handlers"
	httpMW "github.com/HMarcusWH/company-truth-weave-sub000/internal/http/middleware"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/observability"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/orchestrator"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/singleflight"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pipeline/stage"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/dbctx"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/envutil"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/ratelimit"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	appEnv := envutil.GetEnv("APP_ENV", "dev", log)
	jwtSecretKey := envutil.GetEnv("JWT_SECRET_KEY", "", log)
	apiKeyHash := envutil.GetEnv("API_KEY_BCRYPT_HASH", "", log)
	stageRegistryPath := envutil.GetEnv("STAGE_REGISTRY_PATH", "", log)
	reaperIntervalSec := envutil.GetEnvAsInt("REAPER_INTERVAL_SECONDS", 60, log)
	reaperTimeoutMin := envutil.GetEnvAsInt("REAPER_TIMEOUT_MINUTES", 15, log)
	rateLimitPerMin := envutil.GetEnvAsInt("RATE_LIMIT_PER_MINUTE", 60, log)

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "truthweave",
		Environment: appEnv,
		Version:     envutil.GetEnv("APP_VERSION", "", log),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Plain connection pool for the advisory-lock sessions.
	sqlDB, err := sql.Open("pgx", db.DSN(log))
	if err != nil {
		log.Warn("advisory lock pool init failed; relying on the unique index", "error", err)
		sqlDB = nil
	}

	// Redis (optional: lease + rate limit counters)
	var rdb *goredis.Client
	if addr := envutil.GetEnv("REDIS_ADDR", "", log); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable; lease and rate limiting degraded", "error", err)
			_ = rdb.Close()
			rdb = nil
		}
		cancel()
	}

	// Repos
	log.Info("Setting up repos from main...")
	runRepo := runs.NewRunRepo(thePG, log)
	nodeRunRepo := runs.NewNodeRunRepo(thePG, log)
	entityRepo := graph.NewEntityRepo(thePG, log)
	factRepo := graph.NewFactRepo(thePG, log)
	documentRepo := documents.NewDocumentRepo(thePG, log)
	chunkRepo := documents.NewDocumentChunkRepo(thePG, log)

	// Stage client
	registry, err := stage.LoadRegistry(stageRegistryPath, log)
	if err != nil {
		log.Error("Could not load stage registry", "error", err)
		os.Exit(1)
	}
	stageClient := stage.NewClient(log, registry, appEnv)

	// Concurrency guard
	guard, err := singleflight.NewGuard(log, sqlDB, rdb, 90*time.Second)
	if err != nil {
		log.Error("Could not init pipeline guard", "error", err)
		os.Exit(1)
	}

	// Graph projection (optional)
	var mirror *graphmirror.Mirror
	if client, err := graphmirror.NewFromEnv(log); err != nil {
		log.Warn("Neo4j projection disabled", "error", err)
	} else if client != nil {
		mirror = graphmirror.NewMirror(log, client)
		defer client.Close(context.Background())
	}

	// Orchestrator
	orch, err := orchestrator.New(log, stageClient, guard, runRepo, nodeRunRepo, entityRepo, factRepo, mirror)
	if err != nil {
		log.Error("Could not init orchestrator", "error", err)
		os.Exit(1)
	}

	// Reaper: reclaim runs stranded in running status by a process crash.
	go func() {
		interval := time.Duration(reaperIntervalSec) * time.Second
		timeout := time.Duration(reaperTimeoutMin) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			reaped, err := runRepo.ReapStale(dbctx.New(ctx), timeout)
			cancel()
			if err != nil {
				log.Warn("run reaper sweep failed", "error", err)
				continue
			}
			if len(reaped) > 0 {
				log.Info("reaped stale runs", "count", len(reaped), "run_ids", reaped)
			}
		}
	}()

	// Rate limiter
	var limiter *ratelimit.Limiter
	{
		var store ratelimit.CounterStore
		if rdb != nil {
			store = ratelimit.NewRedisStore(rdb)
		} else {
			store = ratelimit.NewMemoryStore()
		}
		limiter, err = ratelimit.NewLimiter(log, store, int64(rateLimitPerMin), time.Minute)
		if err != nil {
			log.Error("Could not init rate limiter", "error", err)
			os.Exit(1)
		}
	}

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware, err := httpMW.NewAuthMiddleware(log, jwtSecretKey, apiKeyHash)
	if err != nil {
		log.Error("Could not init auth middleware", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	ingestHandler := httpH.NewIngestHandler(log, orch, documentRepo, chunkRepo)
	runHandler := httpH.NewRunHandler(runRepo, nodeRunRepo)
	documentHandler := httpH.NewDocumentHandler(documentRepo, entityRepo, factRepo)
	healthHandler := httpH.NewHealthHandler()

	// Server
	log.Info("Setting up router from main...")
	srv := httpserver.NewServer(httpserver.RouterConfig{
		Log:             log,
		AuthMiddleware:  authMiddleware,
		RateLimiter:     limiter,
		IngestHandler:   ingestHandler,
		RunHandler:      runHandler,
		DocumentHandler: documentHandler,
		HealthHandler:   healthHandler,
	})

	port := envutil.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := srv.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
