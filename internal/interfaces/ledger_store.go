package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
)

// LedgerStore is the durable, append-only record of postings.
type LedgerStore interface {
	// SavePosting durably stores a new posting.
	SavePosting(ctx context.Context, posting models.Posting) error
	// GetPostingsByDay returns every posting created on the given UTC day.
	GetPostingsByDay(ctx context.Context, day time.Time) ([]models.Posting, error)
	// GetPostings returns all postings, newest first.
	GetPostings(ctx context.Context) ([]models.Posting, error)
}
