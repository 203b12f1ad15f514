// Package schedulerd implements the scheduler daemon command: it starts the
// REST API, the worker pool, the progress WebSocket hub, and the broker's
// fan-out consumer loop as one long-running process, grounded on the
// teacher's cmd/httpd command and its graceful-shutdown handling.
package schedulerd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldnote/scrapesched/internal/config"
	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/runtime"
)

// shutdownTimeout bounds how long graceful shutdown is given to drain the
// worker pool and close the HTTP server before the process exits anyway.
const shutdownTimeout = 30 * time.Second

var cfgFile string

// Command returns the root command that runs the daemon.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedulerd",
		Short: "Run the scheduler daemon (API, worker pool, WebSocket hub)",
		RunE:  run,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (defaults to ./config.yaml)")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("construct logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	rt, err := runtime.New(cfg, log)
	if err != nil {
		return fmt.Errorf("construct runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh, err := rt.Start(ctx)
	if err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	select {
	case serveErr := <-errCh:
		log.Error("server error", logger.Error(serveErr))
		return fmt.Errorf("server error: %w", serveErr)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := rt.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("scheduler stopped")
	return nil
}
