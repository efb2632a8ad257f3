package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	cachememory "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/cache/memory"
	eventsmemory "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/events/memory"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/metrics"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func postingEvent(id, amount string, kind models.PostingKind, at time.Time) events.PostingCreated {
	return events.PostingCreated{
		PostingID: id,
		Amount:    decimal.RequireFromString(amount),
		Kind:      kind,
		CreatedAt: at,
	}
}

type harness struct {
	channel *eventsmemory.Channel
	sub     *eventsmemory.Subscription
	cache   *cachememory.Cache
	metrics *metrics.Metrics
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T, cache *cachememory.Cache) *harness {
	t.Helper()
	h := &harness{
		channel: eventsmemory.NewChannel(),
		cache:   cache,
		metrics: metrics.New(nil),
		done:    make(chan error, 1),
	}
	h.sub = h.channel.Subscribe()
	p := New(h.sub, cache, WithMetrics(h.metrics), WithRetry(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- p.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *harness) publish(t *testing.T, evs ...events.PostingCreated) {
	t.Helper()
	for _, e := range evs {
		require.NoError(t, h.channel.Publish(context.Background(), e))
	}
}

func (h *harness) drained() bool {
	return h.channel.Pending() == 0 && h.sub.Unacked() == 0
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("projector did not stop")
	}
}

func balance(t *testing.T, cache *cachememory.Cache, d time.Time) (string, bool) {
	t.Helper()
	got, found, err := cache.GetBalance(context.Background(), d)
	require.NoError(t, err)
	return got.StringFixed(2), found
}

func TestProjector_AppliesCreditsAndDebits(t *testing.T) {
	cache := cachememory.New(time.Hour)
	require.NoError(t, cache.SetBalance(context.Background(), day, decimal.Zero, nil))
	h := start(t, cache)

	h.publish(t,
		postingEvent("p1", "100.00", models.Credit, day.Add(9*time.Hour)),
		postingEvent("p2", "30.00", models.Debit, day.Add(15*time.Hour)),
	)
	require.Eventually(t, h.drained, 2*time.Second, 5*time.Millisecond)

	got, found := balance(t, cache, day)
	assert.True(t, found)
	assert.Equal(t, "70.00", got)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ProjectedEvents.WithLabelValues("applied")))
}

func TestProjector_AbsentDayIsNotCreated(t *testing.T) {
	cache := cachememory.New(time.Hour)
	h := start(t, cache)

	h.publish(t, postingEvent("p1", "10.00", models.Credit, day))
	require.Eventually(t, h.drained, 2*time.Second, 5*time.Millisecond)

	_, found := balance(t, cache, day)
	assert.False(t, found)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ProjectedEvents.WithLabelValues("absent")))
}

func TestProjector_RedeliveryWithoutDeduplicationDoubleCounts(t *testing.T) {
	cache := cachememory.New(time.Hour)
	require.NoError(t, cache.SetBalance(context.Background(), day, decimal.Zero, nil))
	h := start(t, cache)

	e := postingEvent("p1", "25.00", models.Credit, day)
	h.publish(t, e, e)
	require.Eventually(t, h.drained, 2*time.Second, 5*time.Millisecond)

	got, _ := balance(t, cache, day)
	assert.Equal(t, "50.00", got, "one extra delta per redelivery")
}

func TestProjector_RedeliveryWithDeduplicationIsNoOp(t *testing.T) {
	cache := cachememory.New(time.Hour, cachememory.WithDeduplication(true))
	require.NoError(t, cache.SetBalance(context.Background(), day, decimal.Zero, nil))
	h := start(t, cache)

	e := postingEvent("p1", "25.00", models.Credit, day)
	h.publish(t, e, e)
	require.Eventually(t, h.drained, 2*time.Second, 5*time.Millisecond)

	got, _ := balance(t, cache, day)
	assert.Equal(t, "25.00", got)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ProjectedEvents.WithLabelValues("duplicate")))
}

func TestProjector_RetriesWithoutAckDuringOutage(t *testing.T) {
	cache := cachememory.New(time.Hour)
	require.NoError(t, cache.SetBalance(context.Background(), day, decimal.Zero, nil))
	cache.SetFailure(errors.New("redis: connection refused"))
	h := start(t, cache)

	h.publish(t,
		postingEvent("p1", "10.00", models.Credit, day),
		postingEvent("p2", "5.00", models.Credit, day),
	)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.ApplyFailures) >= 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, h.sub.Unacked(), "failing event stays unacknowledged")
	assert.Equal(t, 1, h.channel.Pending(), "later events wait behind it")

	cache.SetFailure(nil)
	require.Eventually(t, h.drained, 2*time.Second, 5*time.Millisecond)

	got, _ := balance(t, cache, day)
	assert.Equal(t, "15.00", got)
}

func TestProjector_ShutdownLeavesFailingEventForRedelivery(t *testing.T) {
	cache := cachememory.New(time.Hour)
	cache.SetFailure(errors.New("redis: connection refused"))
	h := start(t, cache)

	h.publish(t, postingEvent("p1", "10.00", models.Credit, day))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.ApplyFailures) >= 1
	}, 2*time.Second, time.Millisecond)

	h.stop(t)
	assert.Equal(t, 1, h.channel.Pending(), "unacknowledged event is requeued when the subscription closes")

	// A new projector picks it up once the cache is back.
	cache.SetFailure(nil)
	require.NoError(t, cache.SetBalance(context.Background(), day, decimal.Zero, nil))
	sub := h.channel.Subscribe()
	p := New(sub, cache, WithRetry(time.Millisecond, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, _ := balance(t, cache, day)
		return got == "10.00"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestProjector_StopsWhenSubscriptionClosed(t *testing.T) {
	channel := eventsmemory.NewChannel()
	sub := channel.Subscribe()
	require.NoError(t, sub.Close())

	p := New(sub, cachememory.New(time.Hour))
	assert.NoError(t, p.Run(context.Background()))
}
