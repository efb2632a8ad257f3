package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PostingKind is the direction of a posting. It is stored as a single character.
type PostingKind string

const (
	Credit PostingKind = "C"
	Debit  PostingKind = "D"
)

// Valid reports whether k is one of the two permitted codes.
func (k PostingKind) Valid() bool {
	return k == Credit || k == Debit
}

// Signed returns amount with the sign implied by k. Credits add, debits subtract.
func (k PostingKind) Signed(amount decimal.Decimal) decimal.Decimal {
	if k == Debit {
		return amount.Neg()
	}
	return amount
}

// Posting is an immutable credit or debit recorded in the ledger.
type Posting struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        PostingKind     `json:"kind"`
	CreatedAt   time.Time       `json:"createdAt"`
	Description string          `json:"description,omitempty"`
}

// MarshalJSON renders the amount as a number with two decimals.
func (p Posting) MarshalJSON() ([]byte, error) {
	type wire Posting
	return json.Marshal(struct {
		wire
		Amount json.Number `json:"amount"`
	}{
		wire:   wire(p),
		Amount: json.Number(p.Amount.StringFixed(BalanceScale)),
	})
}

// Delta is the posting's contribution to its day's balance.
func (p Posting) Delta() decimal.Decimal {
	return p.Kind.Signed(p.Amount)
}

// PostingRequest is the input accepted by the ingestion service.
type PostingRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Kind        PostingKind     `json:"kind"`
	Description string          `json:"description,omitempty"`
}

// SumPostings folds postings into a balance using each posting's sign.
func SumPostings(postings []Posting) decimal.Decimal {
	total := decimal.Zero
	for _, p := range postings {
		total = total.Add(p.Delta())
	}
	return total
}
