package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the calendar-day format used in cache keys and query dates.
const DayLayout = "2006-01-02"

// BalanceScale is the number of decimal places balances and amounts carry.
const BalanceScale = 2

// DailyBalance is the running total of all postings created on one UTC day.
type DailyBalance struct {
	Date   time.Time
	Amount decimal.Decimal
}

// MarshalJSON renders the date as yyyy-MM-dd and the amount with two decimals.
func (b DailyBalance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date   string      `json:"date"`
		Amount json.Number `json:"amount"`
	}{
		Date:   FormatDay(b.Date),
		Amount: json.Number(b.Amount.StringFixed(BalanceScale)),
	})
}

// DayOf truncates t to the start of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay formats the UTC day of t as yyyy-MM-dd.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a yyyy-MM-dd string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}
