// Package models defines the core domain entities: financial entries, settings, and alerts.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for storage and the JSON API.
const DateLayout = "2006-01-02"

// Kind determines the sign of an entry's contribution to the balance.
type Kind string

const (
	KindExpense Kind = "expense"
	KindRevenue Kind = "revenue"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindRevenue
}

// Recurrence describes how often an entry repeats.
type Recurrence string

const (
	OneTime   Recurrence = "one_time"
	Weekly    Recurrence = "weekly"
	Monthly   Recurrence = "monthly"
	Quarterly Recurrence = "quarterly"
)

// Valid reports whether r is a known recurrence.
func (r Recurrence) Valid() bool {
	switch r {
	case OneTime, Weekly, Monthly, Quarterly:
		return true
	}
	return false
}

// MonthStep returns the calendar-month step for month-based recurrences, or 0.
func (r Recurrence) MonthStep() int {
	switch r {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	}
	return 0
}

var hundred = decimal.NewFromInt(100)

// FullProbability is the probability applied when an entry does not set one.
var FullProbability = hundred

// FinancialEntry is a single recurring or one-time cash movement.
type FinancialEntry struct {
	ID          string              `json:"id"`
	Kind        Kind                `json:"kind"`
	Name        string              `json:"name"`
	Category    string              `json:"category,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	Probability decimal.NullDecimal `json:"probability"`
	Recurrence  Recurrence          `json:"recurrence"`
	StartDate   time.Time           `json:"start_date"`
	EndDate     *time.Time          `json:"end_date,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// FieldError identifies the field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func fieldErr(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// Validate checks entry field constraints.
func (e *FinancialEntry) Validate() error {
	if e.ID == "" {
		return fieldErr("id", "must not be empty")
	}
	if !e.Kind.Valid() {
		return fieldErr("kind", fmt.Sprintf("must be %q or %q, got %q", KindExpense, KindRevenue, e.Kind))
	}
	if e.Amount.IsNegative() {
		return fieldErr("amount", "must not be negative")
	}
	if e.Probability.Valid {
		p := e.Probability.Decimal
		if p.IsNegative() || p.GreaterThan(hundred) {
			return fieldErr("probability", "must be between 0 and 100")
		}
	}
	if !e.Recurrence.Valid() {
		return fieldErr("recurrence", fmt.Sprintf("unknown recurrence %q", e.Recurrence))
	}
	if e.StartDate.IsZero() {
		return fieldErr("start_date", "must be a valid date")
	}
	if e.Recurrence != OneTime && e.EndDate != nil && DateOf(*e.EndDate).Before(DateOf(e.StartDate)) {
		return fieldErr("end_date", "must not precede start_date")
	}
	return nil
}

// ValidateForStore applies Validate plus the constraints of a persisted
// entry, which must carry a display name.
func (e *FinancialEntry) ValidateForStore() error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Name == "" {
		return fieldErr("name", "must not be empty")
	}
	return nil
}

// EffectiveProbability returns the entry's probability in percent, 100 when unset.
func (e *FinancialEntry) EffectiveProbability() decimal.Decimal {
	if e.Probability.Valid {
		return e.Probability.Decimal
	}
	return FullProbability
}

// ExpectedAmount is amount * probability / 100.
func (e *FinancialEntry) ExpectedAmount() decimal.Decimal {
	return e.Amount.Mul(e.EffectiveProbability()).Div(hundred)
}

// DateOf truncates t to its calendar day at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date or an RFC 3339 timestamp into a calendar day.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}
