package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// PostingCreated is published once a posting has been durably stored.
// PostingID is used only for deduplication; older producers may omit it.
type PostingCreated struct {
	PostingID string             `json:"postingId,omitempty"`
	Amount    decimal.Decimal    `json:"amount"`
	Kind      models.PostingKind `json:"kind"`
	CreatedAt time.Time          `json:"createdAt"`
}

// NewPostingCreated builds the event for a persisted posting.
func NewPostingCreated(p models.Posting) PostingCreated {
	return PostingCreated{
		PostingID: p.ID,
		Amount:    p.Amount,
		Kind:      p.Kind,
		CreatedAt: p.CreatedAt,
	}
}

// Delta is the signed change this event applies to its day.
func (e PostingCreated) Delta() decimal.Decimal {
	return e.Kind.Signed(e.Amount)
}

// Day is the UTC calendar day the event belongs to.
func (e PostingCreated) Day() time.Time {
	return models.DayOf(e.CreatedAt)
}

// Encode serializes the event for the wire.
func (e PostingCreated) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePostingCreated parses and checks a wire payload.
func DecodePostingCreated(data []byte) (PostingCreated, error) {
	var e PostingCreated
	if err := json.Unmarshal(data, &e); err != nil {
		return PostingCreated{}, fmt.Errorf("decode posting created: %w", err)
	}
	if !e.Kind.Valid() {
		return PostingCreated{}, fmt.Errorf("decode posting created: invalid kind %q", e.Kind)
	}
	if !e.Amount.IsPositive() {
		return PostingCreated{}, fmt.Errorf("decode posting created: amount %s is not positive", e.Amount)
	}
	if e.CreatedAt.IsZero() {
		return PostingCreated{}, fmt.Errorf("decode posting created: missing createdAt")
	}
	return e, nil
}
