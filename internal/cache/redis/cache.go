// Package redis stores daily balances in Redis as integer minor units, so every
// increment is an exact INCRBY.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultTTL bounds how long a cached balance can drift from the ledger.
const DefaultTTL = time.Hour

// incrementScript applies a delta atomically.
// KEYS[1] = balance key (e.g. "balance:2024-01-01")
// KEYS[2] = optional processed-event marker (e.g. "processed:<posting id>")
// ARGV[1] = delta in minor units
// ARGV[2] = marker ttl in seconds
// Returns 0 applied, 1 absent, 2 duplicate.
var incrementScript = redis.NewScript(`
if #KEYS > 1 then
    if not redis.call("SET", KEYS[2], "1", "NX", "EX", ARGV[2]) then
        return 2
    end
end

-- An absent day is left for the next query to recompute from the ledger
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 1
end

redis.call("INCRBY", KEYS[1], ARGV[1])
return 0
`)

// repopulateScript overwrites a balance and marks the postings folded into it.
// KEYS[1] = balance key, KEYS[2..n] = processed-event markers
// ARGV[1] = total in minor units
// ARGV[2] = ttl in seconds
var repopulateScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
for i = 2, #KEYS do
    redis.call("SET", KEYS[i], "1", "EX", ARGV[2])
end
return 1
`)

// BalanceKey is the cache key for a day's balance.
func BalanceKey(day time.Time) string {
	return "balance:" + models.FormatDay(day)
}

// ProcessedKey is the marker recording that a posting's delta was applied.
func ProcessedKey(postingID string) string {
	return "processed:" + postingID
}

// BalanceCache implements interfaces.BalanceCache on Redis.
type BalanceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	dedup  bool
}

// Option configures a BalanceCache.
type Option func(*BalanceCache)

// WithTTL sets the expiry of balance entries and processed markers.
func WithTTL(ttl time.Duration) Option {
	return func(c *BalanceCache) { c.ttl = ttl }
}

// WithDeduplication enables processed-event markers.
func WithDeduplication(enabled bool) Option {
	return func(c *BalanceCache) { c.dedup = enabled }
}

// NewClient creates a Redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewBalanceCache wraps client.
func NewBalanceCache(client redis.UniversalClient, opts ...Option) *BalanceCache {
	c := &BalanceCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BalanceCache) GetBalance(ctx context.Context, day time.Time) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, BalanceKey(day)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get balance: %w", err)
	}

	minor, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis balance %q is not an integer: %w", val, err)
	}
	return fromMinor(minor), true, nil
}

func (c *BalanceCache) IncrementBalance(ctx context.Context, day time.Time, delta decimal.Decimal, eventID string) (interfaces.IncrementOutcome, error) {
	keys := []string{BalanceKey(day)}
	if c.dedup && eventID != "" {
		keys = append(keys, ProcessedKey(eventID))
	}

	minor, err := toMinor(delta)
	if err != nil {
		return interfaces.Absent, err
	}

	res, err := incrementScript.Run(ctx, c.client, keys, minor, c.ttlSeconds()).Int64()
	if err != nil {
		return interfaces.Absent, fmt.Errorf("redis increment balance: %w", err)
	}

	switch res {
	case 0:
		return interfaces.Applied, nil
	case 1:
		return interfaces.Absent, nil
	case 2:
		return interfaces.Duplicate, nil
	default:
		return interfaces.Absent, fmt.Errorf("invalid response from increment script: %d", res)
	}
}

func (c *BalanceCache) SetBalance(ctx context.Context, day time.Time, total decimal.Decimal, postingIDs []string) error {
	key := BalanceKey(day)
	minor, err := toMinor(total)
	if err != nil {
		return err
	}
	if !c.dedup || len(postingIDs) == 0 {
		if err := c.client.Set(ctx, key, minor, c.ttl).Err(); err != nil {
			return fmt.Errorf("redis set balance: %w", err)
		}
		return nil
	}

	keys := make([]string, 0, len(postingIDs)+1)
	keys = append(keys, key)
	for _, id := range postingIDs {
		keys = append(keys, ProcessedKey(id))
	}
	if err := repopulateScript.Run(ctx, c.client, keys, minor, c.ttlSeconds()).Err(); err != nil {
		return fmt.Errorf("redis repopulate balance: %w", err)
	}
	return nil
}

func (c *BalanceCache) ttlSeconds() int64 {
	secs := int64(c.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ErrOutOfRange is returned for amounts whose minor units do not fit in int64.
var ErrOutOfRange = errors.New("amount out of cache range")

func toMinor(d decimal.Decimal) (int64, error) {
	minor := d.Round(models.BalanceScale).Shift(models.BalanceScale)
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return minor.IntPart(), nil
}

func fromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -models.BalanceScale)
}

var _ interfaces.BalanceCache = (*BalanceCache)(nil)
