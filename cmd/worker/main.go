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

	cacheredis "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/cache/redis"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/config"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/metrics"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/projector"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/telemetry"
)

// The worker runs the balance projector: Kafka in, Redis out.
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

	shutdownTracing, err := telemetry.Setup(ctx, "cashflow-worker", cfg.OTelEndpoint, cfg.OTelEnabled)
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
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := cacheredis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}
	cache := cacheredis.NewBalanceCache(client,
		cacheredis.WithTTL(cfg.BalanceTTL),
		cacheredis.WithDeduplication(cfg.DeduplicateEvents),
	)

	if err := kafka.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, 3, 1); err != nil {
		logger.Warn("could not ensure topic", "topic", cfg.KafkaTopic, "error", err)
	}
	sub := kafka.NewSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.WorkerHTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	p := projector.New(sub, cache,
		projector.WithLogger(logger),
		projector.WithMetrics(m),
		projector.WithRetry(cfg.RetryInterval, 30*time.Second),
	)
	logger.Info("starting projector", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	runErr := p.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	return runErr
}
