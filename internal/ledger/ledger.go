package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/apperr"
	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/metrics"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
)

// MaxDescriptionLength is the longest description accepted, in characters.
const MaxDescriptionLength = 255

// MaxAmount is the exclusive upper bound of a posting amount, the range of a
// NUMERIC(18,2) column.
var MaxAmount = decimal.New(1, 16)

const tracerName = "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/ledger"

// Ledger is the ingestion service. It stores postings and then announces them
// on the event channel.
type Ledger struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock replaces the clock that stamps CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Ledger) { l.tracer = tp.Tracer(tracerName) }
}

// NewLedger creates the ingestion service over a store and a publisher.
func NewLedger(store interfaces.LedgerStore, publisher interfaces.EventPublisher, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		metrics:   metrics.New(nil),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Validate checks a request and reports every failing field.
func Validate(req models.PostingRequest) error {
	verr := &apperr.ValidationError{}

	switch {
	case req.Amount.IsZero():
		verr.Add("amount", "Amount is required")
	case req.Amount.IsNegative():
		verr.Add("amount", "Amount must be greater than zero")
	case req.Amount.GreaterThanOrEqual(MaxAmount):
		verr.Add("amount", "Amount must be less than "+MaxAmount.String())
	case !req.Amount.Equal(req.Amount.Truncate(models.BalanceScale)):
		verr.Add("amount", "Amount cannot have more than 2 decimal places")
	}

	switch {
	case req.Kind == "":
		verr.Add("kind", "Posting type is required")
	case !req.Kind.Valid():
		verr.Add("kind", "Posting type must be either 'C' (credit) or 'D' (debit)")
	}

	if utf8.RuneCountInString(req.Description) > MaxDescriptionLength {
		verr.Add("description", "Description cannot exceed 255 characters")
	}

	return verr.OrNil()
}

// CreatePosting validates req, stores a new posting and publishes its event.
// The event is published only after the store write succeeds. A publish failure
// is logged and does not fail the call; the stored posting is picked up by the
// next balance recomputation for its day.
func (l *Ledger) CreatePosting(ctx context.Context, req models.PostingRequest) (models.Posting, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CreatePosting")
	defer span.End()

	if err := Validate(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return models.Posting{}, err
	}

	posting := models.Posting{
		ID:          l.newID(),
		Amount:      req.Amount.Round(models.BalanceScale),
		Kind:        req.Kind,
		// Postgres keeps microseconds; the event must carry the stored instant.
		CreatedAt:   l.now().UTC().Truncate(time.Microsecond),
		Description: req.Description,
	}
	span.SetAttributes(
		attribute.String("posting.id", posting.ID),
		attribute.String("posting.kind", string(posting.Kind)),
	)

	if err := l.store.SavePosting(ctx, posting); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		l.logger.Error("failed to store posting", "posting_id", posting.ID, "error", err)
		return models.Posting{}, fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
	}
	l.metrics.PostingsCreated.Inc()

	// The posting is committed; a client going away must not cancel its event.
	if err := l.publisher.Publish(context.WithoutCancel(ctx), events.NewPostingCreated(posting)); err != nil {
		span.RecordError(err)
		l.metrics.PublishFailures.Inc()
		l.logger.Warn("posting stored but event not published",
			"posting_id", posting.ID,
			"day", models.FormatDay(posting.CreatedAt),
			"error", err,
		)
	}

	return posting, nil
}

// ListPostings returns every posting, newest first.
func (l *Ledger) ListPostings(ctx context.Context) ([]models.Posting, error) {
	postings, err := l.store.GetPostings(ctx)
	if err != nil {
		l.logger.Error("failed to list postings", "error", err)
		return nil, fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
	}
	if postings == nil {
		postings = []models.Posting{}
	}
	return postings, nil
}

