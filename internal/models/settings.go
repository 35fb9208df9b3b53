package models

import "github.com/shopspring/decimal"

// Settings holds user preferences. Currency, DateFormat and Theme are opaque to
// the forecast and only stored for the dashboard.
type Settings struct {
	Currency             string          `json:"currency"`
	DateFormat           string          `json:"date_format"`
	Theme                string          `json:"theme"`
	LowBalanceThreshold  decimal.Decimal `json:"low_balance_threshold"`
	DefaultForecastWeeks int             `json:"default_forecast_weeks"`
	CurrentBalance       decimal.Decimal `json:"current_balance"`
}

// DefaultSettings mirrors the dashboard's initial settings row.
func DefaultSettings() Settings {
	return Settings{
		Currency:             "USD",
		DateFormat:           "MM/DD/YYYY",
		Theme:                "light",
		LowBalanceThreshold:  decimal.Zero,
		DefaultForecastWeeks: 8,
		CurrentBalance:       decimal.Zero,
	}
}

// Validate checks settings constraints.
func (s *Settings) Validate() error {
	if s.Currency == "" {
		return fieldErr("currency", "must not be empty")
	}
	if s.DefaultForecastWeeks < 1 {
		return fieldErr("default_forecast_weeks", "must be at least 1")
	}
	return nil
}
