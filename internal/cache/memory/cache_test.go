package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestCache_IncrementRequiresEntry(t *testing.T) {
	cache := New(time.Hour)
	ctx := context.Background()

	outcome, err := cache.IncrementBalance(ctx, day, decimal.NewFromInt(5), "")
	require.NoError(t, err)
	assert.Equal(t, interfaces.Absent, outcome)

	require.NoError(t, cache.SetBalance(ctx, day, decimal.NewFromInt(10), nil))
	outcome, err = cache.IncrementBalance(ctx, day.Add(time.Hour), decimal.NewFromInt(-3), "")
	require.NoError(t, err)
	assert.Equal(t, interfaces.Applied, outcome)

	got, found, err := cache.GetBalance(ctx, day)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, got.Equal(decimal.NewFromInt(7)))
}

func TestCache_Expiry(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := New(time.Hour, WithClock(c.Now))
	ctx := context.Background()

	require.NoError(t, cache.SetBalance(ctx, day, decimal.NewFromInt(10), nil))
	c.now = c.now.Add(59 * time.Minute)
	_, found, _ := cache.GetBalance(ctx, day)
	assert.True(t, found)

	c.now = c.now.Add(time.Minute)
	_, found, _ = cache.GetBalance(ctx, day)
	assert.False(t, found)
}

func TestCache_Deduplication(t *testing.T) {
	ctx := context.Background()

	plain := New(time.Hour)
	require.NoError(t, plain.SetBalance(ctx, day, decimal.Zero, nil))
	_, _ = plain.IncrementBalance(ctx, day, decimal.NewFromInt(5), "p1")
	_, _ = plain.IncrementBalance(ctx, day, decimal.NewFromInt(5), "p1")
	got, _, _ := plain.GetBalance(ctx, day)
	assert.True(t, got.Equal(decimal.NewFromInt(10)), "redelivery double counts without deduplication")

	dedup := New(time.Hour, WithDeduplication(true))
	require.NoError(t, dedup.SetBalance(ctx, day, decimal.Zero, []string{"p0"}))
	outcome, _ := dedup.IncrementBalance(ctx, day, decimal.NewFromInt(5), "p1")
	assert.Equal(t, interfaces.Applied, outcome)
	outcome, _ = dedup.IncrementBalance(ctx, day, decimal.NewFromInt(5), "p1")
	assert.Equal(t, interfaces.Duplicate, outcome)
	outcome, _ = dedup.IncrementBalance(ctx, day, decimal.NewFromInt(5), "p0")
	assert.Equal(t, interfaces.Duplicate, outcome)
	got, _, _ = dedup.GetBalance(ctx, day)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))
}

func TestCache_Failure(t *testing.T) {
	cache := New(time.Hour)
	ctx := context.Background()
	outage := errors.New("cache down")

	cache.SetFailure(outage)
	_, _, err := cache.GetBalance(ctx, day)
	assert.ErrorIs(t, err, outage)
	_, err = cache.IncrementBalance(ctx, day, decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, outage)
	assert.ErrorIs(t, cache.SetBalance(ctx, day, decimal.Zero, nil), outage)
}

func TestCache_Delete(t *testing.T) {
	cache := New(time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.SetBalance(ctx, day, decimal.NewFromInt(1), nil))
	cache.Delete(day)
	_, found, err := cache.GetBalance(ctx, day)
	require.NoError(t, err)
	assert.False(t, found)
}
