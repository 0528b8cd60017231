package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/cache"
	"github.com/stwalsh4118/rentroll/internal/config"
	"github.com/stwalsh4118/rentroll/internal/database"
	apierrors "github.com/stwalsh4118/rentroll/internal/errors"
	"github.com/stwalsh4118/rentroll/internal/handlers"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/middleware"
	"github.com/stwalsh4118/rentroll/internal/repository"
	"github.com/stwalsh4118/rentroll/internal/services"
	"github.com/stwalsh4118/rentroll/internal/telemetry"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env)
	log.Info("Starting rent roll ingestion API", map[string]interface{}{
		"version":       handlers.APIVersion,
		"environment":   cfg.Server.Env,
		"port":          cfg.Server.Port,
		"cache_backend": cfg.Cache.Backend,
		"ai_enabled":    cfg.AI.Enabled,
	})

	ctx := context.Background()

	vocab, err := vocabulary.Load(cfg.Ingest.VocabularyPath)
	if err != nil {
		log.Fatal("Failed to load vocabulary", err, map[string]interface{}{
			"path": cfg.Ingest.VocabularyPath,
		})
	}

	telemetryProvider, err := telemetry.NewProvider(ctx, cfg.Telemetry, cfg.Server.Env)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", err, map[string]interface{}{
			"endpoint": cfg.Telemetry.OTLPEndpoint,
		})
	}
	defer func() {
		if err := telemetryProvider.Shutdown(context.Background()); err != nil {
			log.Error("Telemetry shutdown failed", err, nil)
		}
	}()
	metrics, err := telemetry.NewMetrics(telemetryProvider.Meter())
	if err != nil {
		log.Fatal("Failed to register metrics", err, nil)
	}

	detectionCache, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open detection cache", err, map[string]interface{}{
			"backend": cfg.Cache.Backend,
		})
	}
	defer closeCache()

	analyzer, err := ai.FromConfig(cfg.AI, log)
	if err != nil {
		log.Fatal("Failed to initialize AI analyzer", err, map[string]interface{}{
			"base_url": cfg.AI.BaseURL,
			"model":    cfg.AI.Model,
		})
	}

	ingestService := services.NewPipeline(services.PipelineConfig{
		Vocabulary:               vocab,
		Analyzer:                 analyzer,
		Cache:                    detectionCache,
		Metrics:                  metrics,
		HeaderMinConfidence:      cfg.Ingest.HeaderMinConfidence,
		AIHeaderAcceptConfidence: cfg.Ingest.AIHeaderAcceptConfidence,
		ClassifierMinConfidence:  cfg.Ingest.ClassifierMinConfidence,
	}, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Order matters: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))
	router.NoRoute(func(c *gin.Context) {
		apierrors.NotFound(c, "Route not found")
	})

	healthHandler := handlers.NewHealthHandler(detectionCache, cfg.Cache.Backend, cfg.Server.Env, analyzer != nil)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)

	rentRollHandler := handlers.NewRentRollHandler(ingestService, cfg.Server.MaxUploadBytes)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", healthHandler.Info)

		rentRolls := v1.Group("/rent-rolls")
		{
			rentRolls.POST("/process", middleware.UploadLimit(cfg.Server.MaxUploadBytes), rentRollHandler.Process)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// openCache builds the configured detection cache and returns its closer.
func openCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (cache.Cache, func(), error) {
	noop := func() {}

	switch cfg.Cache.Backend {
	case config.CacheNone:
		return cache.NewNop(), noop, nil

	case config.CacheMemory:
		return cache.NewMemory(cfg.Cache.TTL), noop, nil

	case config.CacheRedis:
		r := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.TTL)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, noop, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		log.Info("Redis detection cache connected", map[string]interface{}{
			"addr": cfg.Redis.Addr,
			"db":   cfg.Redis.DB,
		})
		return r, func() { _ = r.Close() }, nil

	case config.CacheSQLite:
		s, err := cache.OpenSQLite(cfg.Cache.SQLitePath, cfg.Cache.TTL)
		if err != nil {
			return nil, noop, err
		}
		if purged, err := s.Purge(ctx); err == nil && purged > 0 {
			log.Info("Purged expired cache entries", map[string]interface{}{
				"count": purged,
			})
		}
		return s, func() { _ = s.Close() }, nil

	case config.CachePostgres:
		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		repo := repository.NewDetectionCacheRepository(db, cfg.Cache.TTL)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		if purged, err := repo.Purge(ctx); err == nil && purged > 0 {
			log.Info("Purged expired cache entries", map[string]interface{}{
				"count": purged,
			})
		}
		log.Info("Database connection established", map[string]interface{}{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Name,
			"pool_min": cfg.Database.PoolMin,
			"pool_max": cfg.Database.PoolMax,
			"conns":    db.Stats().TotalConns(),
		})
		return repo, db.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
