// Package projector applies posting events from the channel to the daily balance cache.
package projector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/metrics"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
)

const ackTimeout = 10 * time.Second

const tracerName = "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/projector"

// Projector consumes one subscription sequentially. An event is acknowledged only
// after the cache accepted it; until then it is retried, so the channel never moves
// past an unapplied event.
type Projector struct {
	subscriber interfaces.EventSubscriber
	cache      interfaces.BalanceCache
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	retryInitial time.Duration
	retryMax     time.Duration
}

// Option configures a Projector.
type Option func(*Projector)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projector) { p.metrics = m }
}

// WithRetry sets the initial and maximum wait between failed apply attempts.
func WithRetry(initial, max time.Duration) Option {
	return func(p *Projector) {
		p.retryInitial = initial
		p.retryMax = max
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Projector) { p.tracer = tp.Tracer(tracerName) }
}

// New creates a projector reading from subscriber and writing to cache.
func New(subscriber interfaces.EventSubscriber, cache interfaces.BalanceCache, opts ...Option) *Projector {
	p := &Projector{
		subscriber:   subscriber,
		cache:        cache,
		logger:       slog.Default(),
		metrics:      metrics.New(nil),
		tracer:       otel.Tracer(tracerName),
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes events until ctx is cancelled or the subscription closes, then
// releases the subscription. A message being applied when ctx is cancelled either
// finishes and is acknowledged, or is left unacknowledged for redelivery.
func (p *Projector) Run(ctx context.Context) error {
	defer func() {
		if err := p.subscriber.Close(); err != nil {
			p.logger.Warn("failed to close subscription", "error", err)
		}
	}()

	p.logger.Info("balance projector started")
	for {
		delivery, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, interfaces.ErrSubscriptionClosed) {
				p.logger.Info("balance projector stopped")
				return nil
			}
			return err
		}

		if err := p.handle(ctx, delivery); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("balance projector stopped with event unacknowledged")
				return nil
			}
			return err
		}
	}
}

// fetch waits for the next delivery, riding out channel outages.
func (p *Projector) fetch(ctx context.Context) (interfaces.Delivery, error) {
	return backoff.Retry(ctx, func() (interfaces.Delivery, error) {
		d, err := p.subscriber.Fetch(ctx)
		if err == nil {
			return d, nil
		}
		if ctx.Err() != nil || errors.Is(err, interfaces.ErrSubscriptionClosed) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("fetch failed, retrying", "error", err, "retry_in", next)
		}),
	)
}

// handle applies one event and acknowledges it.
func (p *Projector) handle(ctx context.Context, d interfaces.Delivery) error {
	event := d.Event()
	day := event.Day()

	ctx, span := p.tracer.Start(ctx, "projector.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("balance.day", models.FormatDay(day)),
		attribute.String("posting.id", event.PostingID),
	)

	// The increment itself is not cancelled on shutdown so its result is never lost.
	applyCtx := context.WithoutCancel(ctx)
	outcome, err := backoff.Retry(ctx, func() (interfaces.IncrementOutcome, error) {
		o, err := p.cache.IncrementBalance(applyCtx, day, event.Delta(), event.PostingID)
		if err != nil {
			p.metrics.ApplyFailures.Inc()
		}
		return o, err
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("failed to apply posting event, retrying",
				"day", models.FormatDay(day),
				"posting_id", event.PostingID,
				"error", err,
				"retry_in", next,
			)
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply abandoned")
		return err
	}

	p.metrics.ProjectedEvents.WithLabelValues(outcome.String()).Inc()
	span.SetAttributes(attribute.String("projector.outcome", outcome.String()))
	switch outcome {
	case interfaces.Absent:
		p.logger.Debug("no cached balance for day, left for recomputation", "day", models.FormatDay(day))
	case interfaces.Duplicate:
		p.logger.Info("duplicate posting event ignored", "posting_id", event.PostingID)
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := d.Ack(ackCtx); err != nil {
		// The event will be delivered again; with deduplication on that is a no-op.
		p.logger.Error("failed to acknowledge posting event",
			"posting_id", event.PostingID,
			"error", err,
		)
	}
	return nil
}

func (p *Projector) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryInitial
	b.MaxInterval = p.retryMax
	return b
}
