// Package cli holds the process plumbing shared by the batch commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/fire-danger-etl/internal/adapter/http"
	"github.com/couchcryptid/fire-danger-etl/internal/config"
	"github.com/couchcryptid/fire-danger-etl/internal/observability"
	"github.com/couchcryptid/fire-danger-etl/internal/pipeline"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	headerColor  = color.New(color.FgBlue, color.Bold)
	okColor      = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
)

// LoadEnv loads variables from .env in the working directory. Variables
// already set in the environment win; a missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// BatchFunc runs one batch to completion.
type BatchFunc func(ctx context.Context) (pipeline.Summary, error)

// Run executes batch with SIGINT/SIGTERM cancellation. While it runs, the
// health server listens on cfg.HTTPAddr (if set); afterwards the summary is
// printed to out and metrics from gatherer are pushed to cfg.PushgatewayURL
// (if set). The batch error is returned unchanged.
func Run(ctx context.Context, cfg *config.Config, job string, monitor httpadapter.BatchMonitor, gatherer prometheus.Gatherer, batch BatchFunc, logger *slog.Logger, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, monitor, gatherer, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	summary, err := batch(ctx)
	PrintSummary(out, summary)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if perr := observability.PushMetrics(pushCtx, cfg.PushgatewayURL, job, gatherer); perr != nil {
			logger.Error("metrics push failed", "error", perr)
		}
	}
	return err
}

// PrintSummary writes a human-readable batch report.
func PrintSummary(out io.Writer, s pipeline.Summary) {
	headerColor.Fprintf(out, "%s batch\n", s.Stage)
	fmt.Fprintf(out, "  stations:  %d\n", s.Total)
	okColor.Fprintf(out, "  processed: %d\n", s.Processed)

	skipped := okColor
	if s.Skipped > 0 {
		skipped = warningColor
	}
	skipped.Fprintf(out, "  skipped:   %d\n", s.Skipped)

	fmt.Fprintf(out, "  rows:      %d\n", s.Rows)
	fmt.Fprintf(out, "  duration:  %s\n", s.Duration.Round(time.Millisecond))
	for _, f := range s.Failures {
		failColor.Fprintf(out, "  FAIL %s: %v\n", f.Station, f.Err)
	}
}
