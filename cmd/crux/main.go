package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ooyeku/crux/internal/cache"
	"github.com/ooyeku/crux/internal/config"
	"github.com/ooyeku/crux/internal/dispatch"
	"github.com/ooyeku/crux/internal/metrics"
	"github.com/ooyeku/crux/internal/middleware"
	"github.com/ooyeku/crux/internal/ratelimit"
	"github.com/ooyeku/crux/internal/route"
	"github.com/ooyeku/crux/internal/server"
	"github.com/ooyeku/crux/internal/storage"
	storagememory "github.com/ooyeku/crux/internal/storage/memory"
	storagesqlite "github.com/ooyeku/crux/internal/storage/sqlite"
	"github.com/ooyeku/crux/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.Init("crux", logger)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	store, err := buildCache(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize response cache", slog.Any("error", err))
		os.Exit(1)
	}

	limiter := buildLimiter(cfg)

	accessLog, err := buildAccessLog(cfg)
	if err != nil {
		logger.Error("failed to initialize access log", slog.Any("error", err))
		os.Exit(1)
	}
	if accessLog != nil {
		defer accessLog.Close()
	}

	chain := middleware.NewChain()
	for _, err := range []error{
		chain.AddPreRequest(middleware.RateLimit(limiter)),
		chain.AddPreRequest(middleware.BodySizeLimit(cfg.Pipeline.BodySizeLimit)),
		chain.AddPreRequest(middleware.CacheLookup(store)),
		chain.AddResponse(middleware.CacheStore(store, cfg.Cache.ResponseTTL)),
	} {
		if err != nil {
			logger.Error("failed to build middleware chain", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if cfg.Pipeline.CSRF.Enabled {
		if err := chain.AddPreRequest(middleware.CSRF(cfg.Pipeline.CSRF.Header, cfg.Pipeline.CSRF.CookieName)); err != nil {
			logger.Error("failed to build middleware chain", slog.Any("error", err))
			os.Exit(1)
		}
	}

	table := route.NewTable(0)
	if err := registerTodoRoutes(table, store); err != nil {
		logger.Error("failed to register routes", slog.Any("error", err))
		os.Exit(1)
	}

	d := dispatch.New(dispatch.Options{
		Table:     table,
		Chain:     chain,
		Logger:    logger,
		Metrics:   metrics.New("crux", nil),
		AccessLog: accessLog,
	})

	startJanitor(store, limiter)

	srv := server.New(cfg.Server.Port, logger, d)
	if err := srv.Start(); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func buildCache(cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(cache.RedisConfig{
			Addr:       cfg.Cache.Redis.Addr,
			Password:   cfg.Cache.Redis.Password,
			DB:         cfg.Cache.Redis.DB,
			DefaultTTL: cfg.Cache.DefaultTTL,
			Logger:     logger,
		})
	default:
		return cache.NewMemory(cfg.Cache.DefaultTTL), nil
	}
}

func buildLimiter(cfg *config.Config) ratelimit.Limiter {
	global := ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window(),
	}
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Strategy == "token_bucket" {
		limiter = ratelimit.NewTokenBucket(global)
	} else {
		limiter = ratelimit.NewFixedWindow(global)
	}
	for _, r := range cfg.RateLimit.Routes {
		limiter.SetRouteConfig(r.Route, ratelimit.Config{
			MaxRequests: r.MaxRequests,
			Window:      time.Duration(r.WindowMS) * time.Millisecond,
			Message:     r.Message,
		})
	}
	return limiter
}

func buildAccessLog(cfg *config.Config) (storage.AccessLog, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		path := cfg.Storage.SQLite.Path
		if path == "" {
			path = "crux.db"
		}
		return storagesqlite.New(path)
	case "memory":
		return storagememory.New(), nil
	default:
		return nil, nil
	}
}

// startJanitor sweeps the cache and limiter periodically so entries that
// are written once and never read again do not accumulate.
func startJanitor(store cache.Store, limiter ratelimit.Limiter) {
	ticker := time.NewTicker(2 * time.Minute)
	go func() {
		for range ticker.C {
			store.Cleanup(context.Background())
			limiter.Cleanup()
		}
	}()
}
