package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/api"
	cachememory "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/cache/memory"
	cacheredis "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/cache/redis"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/config"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/events/kafka"
	eventsmemory "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/events/memory"
	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/ledger"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/metrics"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/projector"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/report"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "cashflow-server", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		store     interfaces.LedgerStore
		cache     interfaces.BalanceCache
		publisher interfaces.EventPublisher
		cleanup   []func() error
	)
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				logger.Warn("cleanup failed", "error", err)
			}
		}
	}()

	projectorDone := make(chan error, 1)

	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, running standalone in memory")

		channel := eventsmemory.NewChannel()
		memCache := cachememory.New(cfg.BalanceTTL, cachememory.WithDeduplication(cfg.DeduplicateEvents))
		store, cache, publisher = memory.NewMemoryLedgerStore(), memCache, channel

		p := projector.New(channel.Subscribe(), memCache,
			projector.WithLogger(logger),
			projector.WithMetrics(m),
			projector.WithRetry(cfg.RetryInterval, 30*time.Second),
		)
		go func() { projectorDone <- p.Run(ctx) }()
	} else {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, db.Close)

		pg := postgres.NewPostgresLedgerStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pg

		client := cacheredis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cleanup = append(cleanup, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		cache = cacheredis.NewBalanceCache(client,
			cacheredis.WithTTL(cfg.BalanceTTL),
			cacheredis.WithDeduplication(cfg.DeduplicateEvents),
		)

		if err := kafka.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, 3, 1); err != nil {
			logger.Warn("could not ensure topic", "topic", cfg.KafkaTopic, "error", err)
		}
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		cleanup = append(cleanup, kp.Close)
		publisher = kp

		close(projectorDone)
	}

	postings := ledger.NewLedger(store, publisher, ledger.WithLogger(logger), ledger.WithMetrics(m))
	balances := report.NewService(store, cache, report.WithLogger(logger), report.WithMetrics(m))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewHandler(postings, balances, logger, map[string]http.Handler{
			"GET /metrics": promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err, ok := <-projectorDone; ok && err != nil {
		return err
	}
	return nil
}
