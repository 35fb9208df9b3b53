package main

import (
	"fmt"

	"github.com/rewired-gh/cashcast/internal/config"
	"github.com/rewired-gh/cashcast/internal/email"
	"github.com/rewired-gh/cashcast/internal/logger"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/rewired-gh/cashcast/internal/monitor"
	"github.com/rewired-gh/cashcast/internal/storage"
	"github.com/rewired-gh/cashcast/internal/telegram"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "cashcast",
	Short:        "Cash-flow forecasting service",
	Long:         "Project weekly cash balances from recurring and one-time expenses and revenue, and warn before the balance runs low.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to configuration file (defaults and CASHCAST_* environment when empty)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if flagConfig != "" {
		logger.Info("Configuration loaded from %s", flagConfig)
	}
	return cfg, nil
}

// openStorage opens the database and seeds the settings row from config on
// first start.
func openStorage(cfg *config.Config) (*storage.Storage, error) {
	store, err := storage.New(cfg.Storage.MaxEntries, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	defaults := models.DefaultSettings()
	defaults.Currency = cfg.Forecast.Currency
	defaults.DefaultForecastWeeks = cfg.Forecast.DefaultWeeks
	defaults.LowBalanceThreshold = decimal.NewFromFloat(cfg.Forecast.LowBalanceThreshold)
	if err := store.EnsureSettings(defaults); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func closeStorage(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

// buildNotifiers returns the enabled notifiers. The Telegram client is also
// returned so serve can listen for bot commands.
func buildNotifiers(cfg *config.Config) ([]monitor.Notifier, *telegram.Client, error) {
	var notifiers []monitor.Notifier
	var telegramClient *telegram.Client

	if cfg.Telegram.Enabled {
		c, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		telegramClient = c
		notifiers = append(notifiers, c)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Email.Enabled {
		notifiers = append(notifiers, email.NewSender(cfg.Email))
		logger.Info("Email notifications enabled for %d recipient(s)", len(cfg.Email.To))
	} else {
		logger.Debug("Email notifications disabled")
	}

	return notifiers, telegramClient, nil
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		Schedule: cfg.Monitor.Schedule,
		Weeks:    cfg.Monitor.Weeks,
		Cooldown: cfg.Monitor.Cooldown,
	}
}
