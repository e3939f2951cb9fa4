// Package main is the entry point for the transit gatekeeper.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/authz"
	"github.com/transitops/gatekeeper/internal/cache"
	"github.com/transitops/gatekeeper/internal/config"
	"github.com/transitops/gatekeeper/internal/gatekeeper"
	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ratelimit"
	"github.com/transitops/gatekeeper/internal/ratelimit/store"
	"github.com/transitops/gatekeeper/internal/server"
	"github.com/transitops/gatekeeper/internal/transit"
)

// Version information (set at build time).
var (
	version   = "dev"
	gitCommit = "unknown"
)

const metricsNamespace = "gatekeeper"

func main() {
	configPath := flag.String("config", os.Getenv("GATEKEEPER_CONFIG_PATH"), "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatekeeper version %s (%s)\n", version, gitCommit)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("gatekeeper exited with error", observability.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger observability.Logger) error {
	tracer, err := observability.NewTracer(context.Background(), cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	authMetrics := auth.NewMetrics(metricsNamespace)
	authzMetrics := authz.NewMetrics(metricsNamespace)
	limitMetrics := ratelimit.NewMetrics(metricsNamespace)
	cacheMetrics := cache.NewMetrics(metricsNamespace)

	validator, err := auth.NewValidator(cfg.Auth,
		auth.WithValidatorLogger(logger),
		auth.WithValidatorMetrics(authMetrics),
	)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}

	matcher, err := authz.NewMatcher(cfg.Rules,
		authz.WithMatcherLogger(logger),
		authz.WithMatcherMetrics(authzMetrics),
	)
	if err != nil {
		return fmt.Errorf("matcher: %w", err)
	}

	emitter := authz.NewEmitter(
		authz.WithEmitterLogger(logger),
		authz.WithEmitterMetrics(authzMetrics),
	)

	gk, err := gatekeeper.New(validator, matcher,
		gatekeeper.WithLogger(logger),
		gatekeeper.WithEmitter(emitter),
	)
	if err != nil {
		return fmt.Errorf("gatekeeper: %w", err)
	}

	counterStore := store.NewRedisStore(cfg.Redis)
	defer func() { _ = counterStore.Close() }()

	limiter, err := ratelimit.NewTieredLimiter(cfg.RateLimit, counterStore,
		ratelimit.WithLimiterLogger(logger),
		ratelimit.WithLimiterMetrics(limitMetrics),
	)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	readCache, err := buildCache(cfg, counterStore, logger, cacheMetrics)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	svc, err := transit.NewService(transit.NewMemoryRepository(), readCache,
		transit.WithServiceLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("transit service: %w", err)
	}

	router := server.NewRouter(server.RouterDeps{
		Gatekeeper: gk,
		Limiter:    limiter,
		Handlers:   server.NewHandlers(svc, logger),
		Logger:     logger,
		Gatherers: []prometheus.Gatherer{
			authMetrics.Registry(),
			authzMetrics.Registry(),
			limitMetrics.Registry(),
			cacheMetrics.Registry(),
			prometheus.DefaultGatherer,
		},
	})

	srv := server.NewServer(cfg.Server, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := srv.Stop(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// buildCache creates the read cache. The redis backend shares the
// counter store's client so both see the same instance.
func buildCache(cfg *config.Config, counterStore *store.RedisStore, logger observability.Logger, metrics *cache.Metrics) (cache.Cache, error) {
	if cfg.Cache.Type == cache.TypeRedis {
		return cache.NewRedisCache(counterStore.Client(), cfg.Cache,
			cache.WithRedisCacheLogger(logger),
			cache.WithRedisCacheMetrics(metrics),
		)
	}

	return cache.NewMemoryCache(cfg.Cache,
		cache.WithMemoryCacheLogger(logger),
		cache.WithMemoryCacheMetrics(metrics),
	), nil
}
