package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/HMarcusWH/company-truth-weave-sub000/internal/http/handlers"
	httpMW "github.com/HMarcusWH/company-truth-weave-sub000/internal/http/middleware"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/ratelimit"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware
	RateLimiter    *ratelimit.Limiter

	IngestHandler   *httpH.IngestHandler
	RunHandler      *httpH.RunHandler
	DocumentHandler *httpH.DocumentHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(otelgin.Middleware("truthweave"))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}
		protected.Use(httpMW.RateLimit(cfg.RateLimiter))

		// Ingestion
		if cfg.IngestHandler != nil {
			protected.POST("/ingest", cfg.IngestHandler.Ingest)
		}

		// Run ledger
		if cfg.RunHandler != nil {
			protected.GET("/runs", cfg.RunHandler.ListRuns)
			protected.GET("/runs/:id", cfg.RunHandler.GetRun)
			protected.GET("/runs/:id/node-runs", cfg.RunHandler.ListNodeRuns)
		}

		// Documents and the knowledge graph
		if cfg.DocumentHandler != nil {
			protected.POST("/documents", cfg.DocumentHandler.CreateDocument)
			protected.GET("/documents/:id", cfg.DocumentHandler.GetDocument)
			protected.GET("/documents/:id/facts", cfg.DocumentHandler.ListFacts)
			protected.GET("/documents/:id/entities", cfg.DocumentHandler.ListEntities)
		}
	}

	return r
}
