// Package report answers point-in-time balance queries. It reads the balance cache
// and, on a miss, recomputes the day from the ledger and writes the total back.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/apperr"
	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/metrics"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const tracerName = "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/report"

type Service struct {
	store   interfaces.LedgerStore
	cache   interfaces.BalanceCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// recomputes collapses concurrent misses for the same day within this process.
	// Writers in other processes may still recompute; the totals agree.
	recomputes singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

func NewService(store interfaces.LedgerStore, cache interfaces.BalanceCache, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cache:   cache,
		logger:  slog.Default(),
		metrics: metrics.New(nil),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBalanceByDate parses a yyyy-MM-dd date and returns its balance. An unparsable
// date fails with apperr.ErrInvalidDate before any store is touched.
func (s *Service) GetBalanceByDate(ctx context.Context, date string) (models.DailyBalance, error) {
	day, err := models.ParseDay(date)
	if err != nil {
		return models.DailyBalance{}, fmt.Errorf("%w: %q", apperr.ErrInvalidDate, date)
	}
	return s.GetBalance(ctx, day)
}

// GetBalance returns the balance of day rounded to two decimals. A day without
// postings has a balance of zero. Store failures are reported as
// apperr.ContactAdministrator.
func (s *Service) GetBalance(ctx context.Context, day time.Time) (models.DailyBalance, error) {
	day = models.DayOf(day)
	key := models.FormatDay(day)

	ctx, span := s.tracer.Start(ctx, "report.GetBalance")
	defer span.End()
	span.SetAttributes(attribute.String("balance.day", key))

	amount, found, err := s.cache.GetBalance(ctx, day)
	if err != nil {
		return models.DailyBalance{}, s.fail(span, "failed to read cached balance", key, err)
	}
	if found {
		s.metrics.BalanceQueries.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("balance.cache_hit", true))
		return models.DailyBalance{Date: day, Amount: amount.Round(models.BalanceScale)}, nil
	}

	span.SetAttributes(attribute.Bool("balance.cache_hit", false))
	v, err, _ := s.recomputes.Do(key, func() (interface{}, error) {
		// Shared by every waiter, so one cancelled request must not fail the others.
		return s.recompute(context.WithoutCancel(ctx), day)
	})
	if err != nil {
		return models.DailyBalance{}, s.fail(span, "failed to recompute balance", key, err)
	}
	s.metrics.BalanceQueries.WithLabelValues("miss").Inc()

	total := v.(decimal.Decimal)
	return models.DailyBalance{Date: day, Amount: total.Round(models.BalanceScale)}, nil
}

// recompute folds the day's postings from the ledger and repopulates the cache.
func (s *Service) recompute(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	postings, err := s.store.GetPostingsByDay(ctx, day)
	if err != nil {
		return decimal.Zero, fmt.Errorf("scan ledger: %w", err)
	}

	total := models.SumPostings(postings)
	ids := make([]string, 0, len(postings))
	for _, p := range postings {
		ids = append(ids, p.ID)
	}

	if err := s.cache.SetBalance(ctx, day, total, ids); err != nil {
		return decimal.Zero, fmt.Errorf("repopulate cache: %w", err)
	}
	s.logger.Debug("balance recomputed from ledger",
		"day", models.FormatDay(day),
		"postings", len(postings),
		"total", total.StringFixed(models.BalanceScale),
	)
	return total, nil
}

func (s *Service) fail(span trace.Span, msg, day string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.metrics.BalanceQueries.WithLabelValues("error").Inc()
	s.logger.Error(msg, "day", day, "error", err)
	return apperr.ContactAdministrator
}
