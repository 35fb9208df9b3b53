package main

import (
	"fmt"

	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/rewired-gh/cashcast/internal/monitor"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one low-balance monitoring cycle",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	notifiers, _, err := buildNotifiers(cfg)
	if err != nil {
		return err
	}
	mon := monitor.New(store, monitorConfig(cfg), notifiers...)

	alert, err := mon.RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	if alert == nil {
		fmt.Println("No low balance projected.")
		return nil
	}
	status := "not notified"
	if alert.Notified {
		status = "notified"
	}
	fmt.Printf("Low balance projected: lowest %s, first low week %d starting %s (%s)\n",
		alert.LowestBalance.StringFixed(2), alert.FirstLowPeriod,
		alert.FirstLowDate.Format(models.DateLayout), status)
	return nil
}
