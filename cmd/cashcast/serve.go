package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rewired-gh/cashcast/internal/api"
	"github.com/rewired-gh/cashcast/internal/logger"
	"github.com/rewired-gh/cashcast/internal/monitor"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the low-balance monitor",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	notifiers, telegramClient, err := buildNotifiers(cfg)
	if err != nil {
		return err
	}
	mon := monitor.New(store, monitorConfig(cfg), notifiers...)

	server := api.NewServer(store, api.Config{
		MaxWeeks:       cfg.Forecast.MaxWeeks,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, mon.Forecast)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var wg sync.WaitGroup
	if cfg.Monitor.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	} else {
		logger.Info("Low balance monitor disabled")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("Service failed: %v", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown: %v", err)
	}
	wg.Wait()

	logger.Info("Service stopped")
	return runErr
}
