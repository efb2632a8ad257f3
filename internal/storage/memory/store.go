package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
)

// ErrDuplicateID is returned when a posting id is saved twice.
var ErrDuplicateID = errors.New("memory: posting id already exists")

// MemoryLedgerStore is an in-memory LedgerStore, safe for concurrent use.
// Postings are kept in insertion order.
type MemoryLedgerStore struct {
	mu       sync.RWMutex
	postings []models.Posting
	ids      map[string]struct{}

	// failWith, when set, is returned by every call. Used to simulate an outage.
	failWith error
}

// NewMemoryLedgerStore creates an empty store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		postings: make([]models.Posting, 0),
		ids:      make(map[string]struct{}),
	}
}

// SetFailure makes every subsequent call fail with err. nil restores normal behavior.
func (m *MemoryLedgerStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MemoryLedgerStore) SavePosting(ctx context.Context, posting models.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	if _, exists := m.ids[posting.ID]; exists {
		return ErrDuplicateID
	}
	m.ids[posting.ID] = struct{}{}
	m.postings = append(m.postings, posting)
	return nil
}

func (m *MemoryLedgerStore) GetPostingsByDay(ctx context.Context, day time.Time) ([]models.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	start := models.DayOf(day)
	end := start.AddDate(0, 0, 1)

	var result []models.Posting
	for _, p := range m.postings {
		at := p.CreatedAt.UTC()
		if !at.Before(start) && at.Before(end) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) GetPostings(ctx context.Context) ([]models.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	copied := make([]models.Posting, len(m.postings))
	copy(copied, m.postings)
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].CreatedAt.After(copied[j].CreatedAt)
	})
	return copied, nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
