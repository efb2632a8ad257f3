package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IncrementOutcome reports what an increment did to a cached balance.
type IncrementOutcome int

const (
	// Applied means the delta was added to an existing entry.
	Applied IncrementOutcome = iota
	// Absent means no entry existed for the day, so nothing changed.
	Absent
	// Duplicate means the event id had already been applied.
	Duplicate
)

func (o IncrementOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Absent:
		return "absent"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// BalanceCache holds one derived balance per calendar day. Every write is a single
// atomic operation on the backing store so writers in separate processes never lose updates.
type BalanceCache interface {
	// GetBalance returns the cached balance for day and whether an entry exists.
	GetBalance(ctx context.Context, day time.Time) (decimal.Decimal, bool, error)
	// IncrementBalance atomically adds delta to the day's entry. eventID, when non-empty,
	// is recorded so a redelivered event is reported as Duplicate.
	IncrementBalance(ctx context.Context, day time.Time, delta decimal.Decimal, eventID string) (IncrementOutcome, error)
	// SetBalance overwrites the day's entry with a recomputed total. postingIDs are the
	// postings folded into it; they are marked as applied.
	SetBalance(ctx context.Context, day time.Time, total decimal.Decimal, postingIDs []string) error
}
