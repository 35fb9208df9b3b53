// Package forecast projects a running cash balance over weekly periods from
// recurring and one-time expense and revenue entries.
package forecast

import (
	"errors"
	"sort"
	"time"

	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/shopspring/decimal"
)

// Request is the immutable input to a forecast run.
type Request struct {
	StartingBalance     decimal.Decimal
	StartDate           time.Time
	PeriodCount         int
	Entries             []models.FinancialEntry
	LowBalanceThreshold decimal.Decimal
}

// Occurrence is a single dated instance of an entry's cash effect.
type Occurrence struct {
	EntryID        string          `json:"entry_id"`
	Name           string          `json:"name"`
	Kind           models.Kind     `json:"kind"`
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Probability    decimal.Decimal `json:"probability"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
}

// Period is one projected week. PeriodEnd is the inclusive last day.
type Period struct {
	Index           int             `json:"index"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Inflows         decimal.Decimal `json:"inflows"`
	Outflows        decimal.Decimal `json:"outflows"`
	EndingBalance   decimal.Decimal `json:"ending_balance"`
	IsLowBalance    bool            `json:"is_low_balance"`
	InflowDetails   []Occurrence    `json:"inflow_details"`
	OutflowDetails  []Occurrence    `json:"outflow_details"`
}

// Result is the output of one forecast run.
type Result struct {
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
	Periods              []Period        `json:"periods"`
	LowestBalance        decimal.Decimal `json:"lowest_balance"`
	HighestBalance       decimal.Decimal `json:"highest_balance"`
	EndingBalance        decimal.Decimal `json:"ending_balance"`
	TotalInflows         decimal.Decimal `json:"total_inflows"`
	TotalOutflows        decimal.Decimal `json:"total_outflows"`
	HasLowBalanceWarning bool            `json:"has_low_balance_warning"`
	LowBalancePeriods    int             `json:"low_balance_periods"`
}

// FirstLowPeriod returns the first flagged period, or nil.
func (r *Result) FirstLowPeriod() *Period {
	for i := range r.Periods {
		if r.Periods[i].IsLowBalance {
			return &r.Periods[i]
		}
	}
	return nil
}

// Run validates req and computes the forecast. It never mutates req.Entries
// and is safe for concurrent use.
func Run(req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	windowStart := models.DateOf(req.StartDate)
	windowEnd := windowStart.AddDate(0, 0, daysPerPeriod*req.PeriodCount)

	periods := make([]Period, req.PeriodCount)
	for i := range periods {
		start := windowStart.AddDate(0, 0, daysPerPeriod*i)
		periods[i] = Period{
			Index:          i + 1,
			PeriodStart:    start,
			PeriodEnd:      start.AddDate(0, 0, daysPerPeriod-1),
			Inflows:        decimal.Zero,
			Outflows:       decimal.Zero,
			InflowDetails:  []Occurrence{},
			OutflowDetails: []Occurrence{},
		}
	}

	for i := range req.Entries {
		entry := &req.Entries[i]
		prob := entry.EffectiveProbability()
		expected := entry.ExpectedAmount()
		for _, d := range occurrenceDates(entry, windowStart, windowEnd) {
			if d.Before(windowStart) || !d.Before(windowEnd) {
				continue
			}
			idx := daysBetween(windowStart, d) / daysPerPeriod
			if idx >= len(periods) {
				continue
			}
			occ := Occurrence{
				EntryID:        entry.ID,
				Name:           entry.Name,
				Kind:           entry.Kind,
				Date:           d,
				Amount:         entry.Amount,
				Probability:    prob,
				ExpectedAmount: expected,
			}
			p := &periods[idx]
			if entry.Kind == models.KindRevenue {
				p.Inflows = p.Inflows.Add(expected)
				p.InflowDetails = append(p.InflowDetails, occ)
			} else {
				p.Outflows = p.Outflows.Add(expected)
				p.OutflowDetails = append(p.OutflowDetails, occ)
			}
		}
	}

	result := &Result{
		StartDate:     windowStart,
		EndDate:       windowEnd.AddDate(0, 0, -1),
		Periods:       periods,
		TotalInflows:  decimal.Zero,
		TotalOutflows: decimal.Zero,
	}

	balance := req.StartingBalance
	for i := range periods {
		p := &periods[i]
		sortOccurrences(p.InflowDetails)
		sortOccurrences(p.OutflowDetails)

		p.StartingBalance = balance
		p.EndingBalance = balance.Add(p.Inflows).Sub(p.Outflows)
		p.IsLowBalance = p.EndingBalance.LessThanOrEqual(req.LowBalanceThreshold)
		balance = p.EndingBalance

		if i == 0 || p.EndingBalance.LessThan(result.LowestBalance) {
			result.LowestBalance = p.EndingBalance
		}
		if i == 0 || p.EndingBalance.GreaterThan(result.HighestBalance) {
			result.HighestBalance = p.EndingBalance
		}
		if p.IsLowBalance {
			result.HasLowBalanceWarning = true
			result.LowBalancePeriods++
		}
		result.TotalInflows = result.TotalInflows.Add(p.Inflows)
		result.TotalOutflows = result.TotalOutflows.Add(p.Outflows)
	}
	result.EndingBalance = balance

	return result, nil
}

func validate(req Request) error {
	if req.PeriodCount <= 0 {
		return &InvalidRequestError{EntryIndex: -1, Field: "period_count", Reason: "must be positive"}
	}
	if req.StartDate.IsZero() {
		return &InvalidRequestError{EntryIndex: -1, Field: "start_date", Reason: "must be a valid date"}
	}
	for i := range req.Entries {
		if err := req.Entries[i].Validate(); err != nil {
			ie := &InvalidRequestError{EntryIndex: i, EntryID: req.Entries[i].ID, Reason: err.Error()}
			var fe *models.FieldError
			if errors.As(err, &fe) {
				ie.Field, ie.Reason = fe.Field, fe.Reason
			}
			return ie
		}
	}
	return nil
}

func sortOccurrences(occs []Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Date.Equal(occs[j].Date) {
			return occs[i].Date.Before(occs[j].Date)
		}
		return occs[i].EntryID < occs[j].EntryID
	})
}
