package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagStart     string
	flagWeeks     int
	flagBalance   string
	flagThreshold string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Print a forecast of the stored entries as JSON",
	RunE:  runForecast,
}

func init() {
	forecastCmd.Flags().StringVar(&flagStart, "start", "", "Start date YYYY-MM-DD (default today)")
	forecastCmd.Flags().IntVar(&flagWeeks, "weeks", 0, "Number of weeks (default from settings)")
	forecastCmd.Flags().StringVar(&flagBalance, "balance", "", "Starting balance (default current balance from settings)")
	forecastCmd.Flags().StringVar(&flagThreshold, "threshold", "", "Low-balance threshold (default from settings)")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	settings, err := store.GetSettings()
	if err != nil {
		return err
	}
	entries, err := store.ListEntries()
	if err != nil {
		return err
	}

	req := forecast.Request{
		StartingBalance:     settings.CurrentBalance,
		StartDate:           models.DateOf(time.Now()),
		PeriodCount:         settings.DefaultForecastWeeks,
		Entries:             entries,
		LowBalanceThreshold: settings.LowBalanceThreshold,
	}
	if flagStart != "" {
		if req.StartDate, err = models.ParseDate(flagStart); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
	}
	if cmd.Flags().Changed("weeks") {
		if flagWeeks > cfg.Forecast.MaxWeeks {
			return fmt.Errorf("--weeks must not exceed %d", cfg.Forecast.MaxWeeks)
		}
		req.PeriodCount = flagWeeks
	}
	if flagBalance != "" {
		if req.StartingBalance, err = decimal.NewFromString(flagBalance); err != nil {
			return fmt.Errorf("--balance: %w", err)
		}
	}
	if flagThreshold != "" {
		if req.LowBalanceThreshold, err = decimal.NewFromString(flagThreshold); err != nil {
			return fmt.Errorf("--threshold: %w", err)
		}
	}

	result, err := forecast.Run(req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
