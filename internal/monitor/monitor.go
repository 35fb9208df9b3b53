// Package monitor periodically forecasts the stored entries and notifies when
// a low balance is projected.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/logger"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/rewired-gh/cashcast/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config controls when the monitor runs, how far it forecasts, and how long a
// delivered alert suppresses repeats.
type Config struct {
	Schedule string
	Weeks    int
	Cooldown time.Duration
}

// Notifier delivers monitor events to one channel.
type Notifier interface {
	SendLowBalance(alert models.Alert, result *forecast.Result) error
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

type notifiedRecord struct {
	LowestBalance decimal.Decimal
	SentAt        time.Time
}

// Monitor runs scheduled forecast cycles against a Storage.
type Monitor struct {
	storage   *storage.Storage
	notifiers []Notifier
	config    Config
	now       func() time.Time

	mu                  sync.Mutex
	lastNotified        *notifiedRecord
	consecutiveFailures int
}

// New creates a Monitor, restoring the cooldown from the last notified alert.
func New(s *storage.Storage, config Config, notifiers ...Notifier) *Monitor {
	m := &Monitor{
		storage:   s,
		notifiers: notifiers,
		config:    config,
		now:       time.Now,
	}

	last, err := s.LatestNotifiedAlert()
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		logger.Warn("Failed to load last notified alert: %v", err)
	default:
		m.lastNotified = &notifiedRecord{LowestBalance: last.LowestBalance, SentAt: last.DetectedAt}
		logger.Info("Loaded last notified alert from %s (lowest balance %s)",
			last.DetectedAt.Format(time.RFC3339), last.LowestBalance.StringFixed(2))
	}

	return m
}

// Forecast runs the forecast from today using stored settings and entries.
func (m *Monitor) Forecast(ctx context.Context) (*forecast.Result, error) {
	result, _, err := m.forecast(ctx)
	return result, err
}

func (m *Monitor) forecast(ctx context.Context) (*forecast.Result, *models.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	settings, err := m.storage.GetSettings()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}
	entries, err := m.storage.ListEntries()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load entries: %w", err)
	}

	weeks := m.config.Weeks
	if weeks <= 0 {
		weeks = settings.DefaultForecastWeeks
	}

	result, err := forecast.Run(forecast.Request{
		StartingBalance:     settings.CurrentBalance,
		StartDate:           models.DateOf(m.now()),
		PeriodCount:         weeks,
		Entries:             entries,
		LowBalanceThreshold: settings.LowBalanceThreshold,
	})
	if err != nil {
		return nil, nil, err
	}
	return result, settings, nil
}

// RunCycle forecasts once. When a low balance is projected it stores an alert,
// notifies unless the cooldown suppresses it, and marks the alert notified once
// a notifier delivered it. It returns nil when no warning was raised.
func (m *Monitor) RunCycle(ctx context.Context) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	startTime := m.now()
	logger.Debug("Starting monitoring cycle")

	result, settings, err := m.forecast(ctx)
	if err != nil {
		return nil, fmt.Errorf("forecast failed: %w", err)
	}
	if !result.HasLowBalanceWarning {
		logger.Info("No low balance projected through %s (lowest %s)",
			result.EndDate.Format(models.DateLayout), result.LowestBalance.StringFixed(2))
		return nil, nil
	}

	first := result.FirstLowPeriod()
	alert := &models.Alert{
		ID:             uuid.New().String(),
		DetectedAt:     startTime,
		ForecastStart:  result.StartDate,
		LowestBalance:  result.LowestBalance,
		Threshold:      settings.LowBalanceThreshold,
		FirstLowPeriod: first.Index,
		FirstLowDate:   first.PeriodStart,
		LowPeriodCount: result.LowBalancePeriods,
	}
	logger.Warn("Low balance projected: lowest %s, first low week %d starting %s",
		alert.LowestBalance.StringFixed(2), alert.FirstLowPeriod, alert.FirstLowDate.Format(models.DateLayout))

	if err := m.storage.AddAlert(alert); err != nil {
		return alert, fmt.Errorf("failed to store alert: %w", err)
	}

	if !m.shouldNotify(alert) {
		logger.Info("Low balance alert suppressed by cooldown")
	} else if m.notifyLowBalance(*alert, result) {
		m.recordNotified(alert)
		if err := m.storage.MarkAlertNotified(alert.ID); err != nil {
			return alert, fmt.Errorf("failed to mark alert notified: %w", err)
		}
		alert.Notified = true
	}

	logger.Debug("Monitoring cycle completed in %v", m.now().Sub(startTime))
	return alert, nil
}

// shouldNotify allows an alert when no notification was sent within the
// cooldown, or when the projected lowest balance has worsened since.
func (m *Monitor) shouldNotify(alert *models.Alert) bool {
	rec := m.lastNotified
	if rec == nil {
		return true
	}
	if m.now().Sub(rec.SentAt) >= m.config.Cooldown {
		return true
	}
	return alert.LowestBalance.LessThan(rec.LowestBalance)
}

func (m *Monitor) recordNotified(alert *models.Alert) {
	m.lastNotified = &notifiedRecord{LowestBalance: alert.LowestBalance, SentAt: alert.DetectedAt}
}

// notifyLowBalance reports whether at least one notifier delivered the alert.
func (m *Monitor) notifyLowBalance(alert models.Alert, result *forecast.Result) bool {
	if len(m.notifiers) == 0 {
		logger.Debug("Low balance detected but no notifiers configured")
		return false
	}
	delivered := false
	for _, n := range m.notifiers {
		if err := n.SendLowBalance(alert, result); err != nil {
			logger.Error("Failed to send low balance notification: %v", err)
			continue
		}
		delivered = true
	}
	return delivered
}

// HandleCycleResult tracks consecutive failures. The first failure of a run
// sends an error notification; the next success sends a recovery notification.
func (m *Monitor) HandleCycleResult(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.consecutiveFailures++
		logger.Error("Monitoring cycle failed: %v", err)
		if m.consecutiveFailures == 1 {
			for _, n := range m.notifiers {
				if sendErr := n.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
		}
		return
	}

	if m.consecutiveFailures > 0 {
		for _, n := range m.notifiers {
			if sendErr := n.SendRecovery(m.consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
	}
	m.consecutiveFailures = 0
}

// Start runs an initial cycle, then one per schedule tick until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(m.config.Schedule, func() {
		logger.Debug("Starting scheduled monitoring cycle")
		_, err := m.RunCycle(ctx)
		m.HandleCycleResult(err)
	})
	if err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", m.config.Schedule, err)
	}

	logger.Info("Starting low balance monitor (schedule: %s, cooldown: %v)", m.config.Schedule, m.config.Cooldown)
	logger.Debug("Running initial monitoring cycle")
	_, cycleErr := m.RunCycle(ctx)
	m.HandleCycleResult(cycleErr)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Monitor stopped")
	return nil
}
