package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/position-exit-signals/internal/config"
	"github.com/trogers1052/position-exit-signals/internal/database"
	"github.com/trogers1052/position-exit-signals/internal/kafka"
	"github.com/trogers1052/position-exit-signals/internal/metrics"
	"github.com/trogers1052/position-exit-signals/internal/positions"
	"github.com/trogers1052/position-exit-signals/internal/pricing"
)

// app holds the wired collaborators shared by the commands
type app struct {
	cfg      *config.Config
	db       *database.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	producer *kafka.Producer
	cache    *pricing.Cached
	prices   pricing.Provider
	remote   []pricing.Source
	manager  *positions.Manager
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	a.db = db

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if cfg.Redis.Addr != "" {
		a.redis = connectRedis(ctx, cfg.Redis)
	}

	var sources []pricing.Source
	for _, name := range cfg.Pricing.Backends {
		switch name {
		case config.BackendDB:
			sources = append(sources, pricing.Source{Name: name, Provider: a.db})
		case config.BackendTWSE:
			src := pricing.Source{Name: name, Provider: guard(name, pricing.NewTWSEProvider(
				cfg.Pricing.TWSEBaseURL,
				pricing.WithMonthPause(cfg.Pricing.TWSEMonthPause),
			), cfg.Pricing)}
			sources = append(sources, src)
			a.remote = append(a.remote, src)
		case config.BackendAlpaca:
			src := pricing.Source{Name: name, Provider: guard(name, pricing.NewAlpacaProvider(
				cfg.Pricing.AlpacaAPIKey,
				cfg.Pricing.AlpacaAPISecret,
				cfg.Pricing.AlpacaFeed,
			), cfg.Pricing)}
			sources = append(sources, src)
			a.remote = append(a.remote, src)
		}
	}

	a.prices = pricing.NewFallback(a.metrics, sources...)
	if a.redis != nil {
		a.cache = pricing.NewCached(a.redis, a.prices, cfg.Redis.CacheTTL, a.metrics)
		a.prices = a.cache
	}

	opts := positions.Options{
		Concurrency:  cfg.Signals.Concurrency,
		FetchTimeout: cfg.Pricing.Timeout,
		StoreTimeout: cfg.Database.Timeout,
		Metrics:      a.metrics,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PositionsTopic)
		opts.Publisher = a.producer
	}
	a.manager = positions.NewManager(a.db, a.prices, opts)

	return a, nil
}

func guard(name string, p pricing.Provider, cfg config.PricingConfig) *pricing.Guarded {
	return pricing.NewGuarded(name, p, pricing.GuardOptions{
		Timeout:          cfg.Timeout,
		RatePerSecond:    cfg.RatePerSecond,
		Burst:            cfg.Burst,
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})
}

// connectRedis returns nil when Redis is unreachable; the service runs
// without a cache in that case.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, continuing without cache")
		client.Close()
		return nil
	}
	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return client
}

func (a *app) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

func (a *app) Close() error {
	var errs []error
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close app: %w", err)
	}
	return nil
}
