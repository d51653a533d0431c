package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"medquery/internal/access"
	"medquery/internal/ai"
	"medquery/internal/bridge"
	"medquery/internal/config"
	"medquery/internal/database"
	httpapi "medquery/internal/http"
	"medquery/internal/logger"
	"medquery/internal/query"
	"medquery/internal/repository"
	"medquery/internal/service"
	"medquery/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "medquery")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	policy := access.NewPolicy()

	// Storage: Postgres when available, in-memory fallback otherwise
	// (queries keep working off the file snapshot).
	var db *sql.DB
	var repo repository.PatientsRepository = repository.NewMemoryPatientsRepo()
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			repo = repository.NewPostgresPatientsRepo(db)
			log.Info("DB enabled for medquery")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repository", zap.Error(err))
		}
	}

	// Optional response cache
	var redisClient *redis.Client
	var cache store.KV
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = store.NewRedisKV(redisClient)
	}

	// Optional remote tool bridge
	var toolBridge bridge.ToolBridge
	if cfg.Bridge.Enabled {
		toolBridge = bridge.NewClient(cfg.Bridge.URL, nil, cfg.Bridge.Timeout, log)
		log.Info("Remote tool bridge enabled", zap.String("url", cfg.Bridge.URL))
	}

	// Optional generative backend
	var backend query.GenerativeBackend
	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		var shield ai.Shield = ai.NoopShield{}
		if cfg.AI.ShieldEnabled && cfg.AI.ShieldURL != "" {
			shield = ai.NewHTTPShield(cfg.AI.ShieldURL, cfg.AI.ShieldAPIKey, cfg.AI.Timeout, log)
			log.Info("Content-safety shield enabled")
		}
		backend = ai.NewProcessor(ai.Config{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		}, shield, policy, log)
		log.Info("Generative backend enabled", zap.String("model", cfg.AI.Model))
	} else {
		log.Info("Rule-based mode: generative backend not configured")
	}

	orchestrator := query.NewOrchestrator(policy, toolBridge, backend, log)
	svc := service.NewQueryService(policy, repo, orchestrator, cache, cfg.Redis.CacheTTL, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot bootstrap: prefer the DB, fall back to the seed file.
	loaded := false
	if db != nil {
		if err := svc.LoadSnapshotFromRepo(ctx, cfg.Data.SnapshotSize); err != nil {
			log.Warn("failed to load snapshot from DB", zap.Error(err))
		} else {
			loaded = true
		}
	}
	if !loaded && cfg.Data.File != "" {
		if err := svc.LoadSnapshotFromFile(ctx, cfg.Data.File); err != nil {
			log.Warn("failed to load snapshot from file", zap.Error(err))
		}
	}

	router := httpapi.NewRouter(log)
	router.RegisterQueryRoutes(httpapi.NewQueryHandler(svc, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = database.Close(db)
	}
}
