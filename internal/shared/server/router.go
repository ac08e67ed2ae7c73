package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/evaluations"
	"insight-backend/internal/llm"
	"insight-backend/internal/llm/deepseek"
	"insight-backend/internal/llm/gemini"
	"insight-backend/internal/llm/openai"
	"insight-backend/internal/services/health"
	"insight-backend/internal/shared/config"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/shared/storage/db"
	"insight-backend/internal/usage"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Principal(),
		middleware.RateLimit(rateLimits()),
	)

	// Dependencies
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		conn, err := db.Connect(context.Background(), cfg.DatabaseURL, opts)
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else if err := db.RunMigrations(context.Background(), conn); err != nil {
			log.Printf("failed to run migrations, falling back to memory: %v", err)
		} else {
			sqlDB = conn
		}
	}

	registry := buildRegistry(cfg)

	var usageSvc *usage.Service
	if sqlDB != nil {
		usageSvc = usage.NewPostgresService(usage.NewPGStore(sqlDB))
	} else {
		usageSvc = usage.NewService()
	}
	usageHandler := usage.NewHandler(usageSvc)

	var evalRepo evaluations.Repo
	if sqlDB != nil {
		evalRepo = &evaluations.PGRepo{DB: sqlDB}
	} else {
		evalRepo = evaluations.NewMemoryRepo()
	}
	evalSvc := evaluations.NewService(evalRepo, usageSvc, registry)
	evalSvc.ChunkMaxWords = cfg.ChunkMaxWords
	evalSvc.BatchSize = cfg.BatchSize
	evalSvc.Cooldown = cfg.BatchCooldown
	if backend, err := llm.ParseBackend(cfg.DefaultBackend); err != nil {
		log.Printf("invalid default backend %q: %v", cfg.DefaultBackend, err)
	} else {
		evalSvc.DefaultBackend = backend
	}
	evalHandler := evaluations.NewHandler(evalSvc)

	backendNames := make([]string, 0)
	for _, b := range registry.Backends() {
		backendNames = append(backendNames, string(b))
	}
	healthSvc := health.NewService(backendNames)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Status())
	})
	evalHandler.RegisterRoutes(api)
	usageHandler.RegisterRoutes(api)

	return r
}

func buildRegistry(cfg config.Config) *llm.Registry {
	registry := llm.NewRegistry()
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			log.Printf("openai adapter disabled: %v", err)
		} else {
			registry.Register(llm.BackendOpenAI, cfg.OpenAIModel, client)
		}
	}
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("gemini adapter disabled: %v", err)
		} else {
			registry.Register(llm.BackendGemini, cfg.GeminiModel, client)
		}
	}
	if cfg.DeepSeekAPIKey != "" {
		client, err := deepseek.NewClient(cfg.DeepSeekAPIKey, cfg.DeepSeekModel, cfg.DeepSeekBaseURL)
		if err != nil {
			log.Printf("deepseek adapter disabled: %v", err)
		} else {
			registry.Register(llm.BackendDeepSeek, cfg.DeepSeekModel, client)
		}
	}
	return registry
}

// rateLimits keeps job starts on a tight budget while allowing frequent
// snapshot polling.
func rateLimits() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return "POLLING"
			}
			return "DEFAULT"
		},
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 0.5, Burst: 5},
			"POLLING": {Rate: 5, Burst: 20},
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
