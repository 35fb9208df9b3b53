package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert records a projected low balance detected by the monitor.
type Alert struct {
	ID             string          `json:"id"`
	DetectedAt     time.Time       `json:"detected_at"`
	ForecastStart  time.Time       `json:"forecast_start"`
	LowestBalance  decimal.Decimal `json:"lowest_balance"`
	Threshold      decimal.Decimal `json:"threshold"`
	FirstLowPeriod int             `json:"first_low_period"`
	FirstLowDate   time.Time       `json:"first_low_date"`
	LowPeriodCount int             `json:"low_period_count"`
	Notified       bool            `json:"notified"`
}
