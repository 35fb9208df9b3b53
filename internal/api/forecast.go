package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/shopspring/decimal"
)

const defaultAlertLimit = 20

type settingsDTO struct {
	Currency             string           `json:"currency"`
	DateFormat           string           `json:"dateFormat"`
	Theme                string           `json:"theme"`
	LowBalanceThreshold  decimal.Decimal  `json:"lowBalanceThreshold"`
	DefaultForecastWeeks int              `json:"defaultForecastWeeks"`
	CurrentBalance       *decimal.Decimal `json:"currentBalance,omitempty"`
}

func settingsFrom(st *models.Settings) settingsDTO {
	balance := st.CurrentBalance
	return settingsDTO{
		Currency:             st.Currency,
		DateFormat:           st.DateFormat,
		Theme:                st.Theme,
		LowBalanceThreshold:  st.LowBalanceThreshold,
		DefaultForecastWeeks: st.DefaultForecastWeeks,
		CurrentBalance:       &balance,
	}
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsFrom(st))
}

// updateSettings replaces the settings. An omitted currentBalance keeps the
// stored balance.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var dto settingsDTO
	if err := decodeJSON(r, &dto); err != nil {
		writeError(w, err)
		return
	}
	current, err := s.store.GetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	st := &models.Settings{
		Currency:             dto.Currency,
		DateFormat:           dto.DateFormat,
		Theme:                dto.Theme,
		LowBalanceThreshold:  dto.LowBalanceThreshold,
		DefaultForecastWeeks: dto.DefaultForecastWeeks,
		CurrentBalance:       current.CurrentBalance,
	}
	if dto.CurrentBalance != nil {
		st.CurrentBalance = *dto.CurrentBalance
	}
	if err := s.store.SaveSettings(st); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsFrom(st))
}

type forecastRequestDTO struct {
	StartDate           string           `json:"startDate"`
	NumWeeks            *int             `json:"numWeeks"`
	InitialBalance      *decimal.Decimal `json:"initialBalance"`
	LowBalanceThreshold *decimal.Decimal `json:"lowBalanceThreshold"`
}

type occurrenceDTO struct {
	EntryID        string          `json:"entryId"`
	Name           string          `json:"name"`
	Kind           models.Kind     `json:"kind"`
	Date           string          `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Probability    decimal.Decimal `json:"probability"`
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`
}

type periodDTO struct {
	Week            int             `json:"week"`
	Date            string          `json:"date"`
	EndDate         string          `json:"endDate"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
	Inflows         decimal.Decimal `json:"inflows"`
	Outflows        decimal.Decimal `json:"outflows"`
	EndingBalance   decimal.Decimal `json:"endingBalance"`
	IsLowBalance    bool            `json:"isLowBalance"`
	InflowDetails   []occurrenceDTO `json:"inflowDetails"`
	OutflowDetails  []occurrenceDTO `json:"outflowDetails"`
}

type forecastDTO struct {
	StartDate            string          `json:"startDate"`
	EndDate              string          `json:"endDate"`
	NumWeeks             int             `json:"numWeeks"`
	LowBalanceThreshold  decimal.Decimal `json:"lowBalanceThreshold"`
	Entries              []periodDTO     `json:"entries"`
	LowestBalance        decimal.Decimal `json:"lowestBalance"`
	HighestBalance       decimal.Decimal `json:"highestBalance"`
	EndingBalance        decimal.Decimal `json:"endingBalance"`
	TotalInflows         decimal.Decimal `json:"totalInflows"`
	TotalOutflows        decimal.Decimal `json:"totalOutflows"`
	HasLowBalanceWarning bool            `json:"hasLowBalanceWarning"`
	LowBalancePeriods    int             `json:"lowBalancePeriods"`
}

func occurrencesFrom(occs []forecast.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occs))
	for _, o := range occs {
		out = append(out, occurrenceDTO{
			EntryID:        o.EntryID,
			Name:           o.Name,
			Kind:           o.Kind,
			Date:           o.Date.Format(models.DateLayout),
			Amount:         o.Amount,
			Probability:    o.Probability,
			ExpectedAmount: o.ExpectedAmount,
		})
	}
	return out
}

func forecastFrom(res *forecast.Result, threshold decimal.Decimal) forecastDTO {
	dto := forecastDTO{
		StartDate:            res.StartDate.Format(models.DateLayout),
		EndDate:              res.EndDate.Format(models.DateLayout),
		NumWeeks:             len(res.Periods),
		LowBalanceThreshold:  threshold,
		Entries:              make([]periodDTO, 0, len(res.Periods)),
		LowestBalance:        res.LowestBalance,
		HighestBalance:       res.HighestBalance,
		EndingBalance:        res.EndingBalance,
		TotalInflows:         res.TotalInflows,
		TotalOutflows:        res.TotalOutflows,
		HasLowBalanceWarning: res.HasLowBalanceWarning,
		LowBalancePeriods:    res.LowBalancePeriods,
	}
	for _, p := range res.Periods {
		dto.Entries = append(dto.Entries, periodDTO{
			Week:            p.Index,
			Date:            p.PeriodStart.Format(models.DateLayout),
			EndDate:         p.PeriodEnd.Format(models.DateLayout),
			StartingBalance: p.StartingBalance,
			Inflows:         p.Inflows,
			Outflows:        p.Outflows,
			EndingBalance:   p.EndingBalance,
			IsLowBalance:    p.IsLowBalance,
			InflowDetails:   occurrencesFrom(p.InflowDetails),
			OutflowDetails:  occurrencesFrom(p.OutflowDetails),
		})
	}
	return dto
}

// calculateForecast runs the engine over all stored entries. Omitted request
// fields fall back to the stored settings.
func (s *Server) calculateForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.StartDate == "" {
		writeError(w, &models.FieldError{Field: "startDate", Reason: "is required"})
		return
	}
	start, err := models.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, &models.FieldError{Field: "startDate", Reason: err.Error()})
		return
	}

	settings, err := s.store.GetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	weeks := settings.DefaultForecastWeeks
	if req.NumWeeks != nil {
		weeks = *req.NumWeeks
	}
	if s.config.MaxWeeks > 0 && weeks > s.config.MaxWeeks {
		writeError(w, &models.FieldError{Field: "numWeeks", Reason: fmt.Sprintf("must not exceed %d", s.config.MaxWeeks)})
		return
	}
	balance := settings.CurrentBalance
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}
	threshold := settings.LowBalanceThreshold
	if req.LowBalanceThreshold != nil {
		threshold = *req.LowBalanceThreshold
	}

	entries, err := s.store.ListEntries()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := forecast.Run(forecast.Request{
		StartingBalance:     balance,
		StartDate:           start,
		PeriodCount:         weeks,
		Entries:             entries,
		LowBalanceThreshold: threshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastFrom(res, threshold))
}

type alertDTO struct {
	ID            string          `json:"id"`
	DetectedAt    string          `json:"detectedAt"`
	ForecastStart string          `json:"forecastStart"`
	LowestBalance decimal.Decimal `json:"lowestBalance"`
	Threshold     decimal.Decimal `json:"threshold"`
	FirstLowWeek  int             `json:"firstLowWeek"`
	FirstLowDate  string          `json:"firstLowDate"`
	LowWeekCount  int             `json:"lowWeekCount"`
	Notified      bool            `json:"notified"`
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, &models.FieldError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}
	alerts, err := s.store.RecentAlerts(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertDTO{
			ID:            a.ID,
			DetectedAt:    a.DetectedAt.UTC().Format(time.RFC3339),
			ForecastStart: a.ForecastStart.Format(models.DateLayout),
			LowestBalance: a.LowestBalance,
			Threshold:     a.Threshold,
			FirstLowWeek:  a.FirstLowPeriod,
			FirstLowDate:  a.FirstLowDate.Format(models.DateLayout),
			LowWeekCount:  a.LowPeriodCount,
			Notified:      a.Notified,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
