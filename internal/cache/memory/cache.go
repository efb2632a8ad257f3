// Package memory is an in-process BalanceCache with the same semantics as the Redis cache.
// It is meant for tests and the standalone server, where every writer shares one process.
package memory

import (
	"context"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type entry struct {
	amount    decimal.Decimal
	expiresAt time.Time
}

// Cache is a TTL-bounded map of day to balance.
type Cache struct {
	mu        sync.Mutex
	balances  map[string]entry
	processed map[string]time.Time
	ttl       time.Duration
	dedup     bool
	now       func() time.Time
	failWith  error
}

// Option configures a Cache.
type Option func(*Cache)

// WithDeduplication records applied event ids for the balance TTL.
func WithDeduplication(enabled bool) Option {
	return func(c *Cache) { c.dedup = enabled }
}

// WithClock replaces time.Now. Used by tests to move past TTLs.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache whose entries live for ttl.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		balances:  make(map[string]entry),
		processed: make(map[string]time.Time),
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFailure makes every call fail with err until cleared with nil.
func (c *Cache) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// Delete drops the day's entry, as if it had expired.
func (c *Cache) Delete(day time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, models.FormatDay(day))
}

func (c *Cache) GetBalance(ctx context.Context, day time.Time) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return decimal.Zero, false, c.failWith
	}
	e, ok := c.live(models.FormatDay(day))
	if !ok {
		return decimal.Zero, false, nil
	}
	return e.amount, true, nil
}

func (c *Cache) IncrementBalance(ctx context.Context, day time.Time, delta decimal.Decimal, eventID string) (interfaces.IncrementOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return interfaces.Absent, c.failWith
	}

	now := c.now()
	if c.dedup && eventID != "" {
		if exp, seen := c.processed[eventID]; seen && now.Before(exp) {
			return interfaces.Duplicate, nil
		}
		c.processed[eventID] = now.Add(c.ttl)
	}

	key := models.FormatDay(day)
	e, ok := c.live(key)
	if !ok {
		return interfaces.Absent, nil
	}
	e.amount = e.amount.Add(delta)
	c.balances[key] = e
	return interfaces.Applied, nil
}

func (c *Cache) SetBalance(ctx context.Context, day time.Time, total decimal.Decimal, postingIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return c.failWith
	}

	expiresAt := c.now().Add(c.ttl)
	c.balances[models.FormatDay(day)] = entry{amount: total, expiresAt: expiresAt}
	if c.dedup {
		for _, id := range postingIDs {
			c.processed[id] = expiresAt
		}
	}
	return nil
}

// live returns the unexpired entry for key, evicting it when stale. Caller holds mu.
func (c *Cache) live(key string) (entry, bool) {
	e, ok := c.balances[key]
	if !ok {
		return entry{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.balances, key)
		return entry{}, false
	}
	return e, true
}

var _ interfaces.BalanceCache = (*Cache)(nil)
