package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/config"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/report"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicectl",
	Short: "Upload invoices and review the consolidated results",
	Long: `invoicectl is the command-line client of the invoice consolidation backend.

It uploads batches of invoice files (PDF, XLSX, XLS, CSV, JPEG, PNG, ZIP),
lists and filters the extracted invoices, shows a dashboard of totals,
payment status, top vendors and monthly volume, and downloads or publishes
the consolidated data.

Environment variables:
  INVOICE_API_URL               - Backend API base URL (default: http://localhost:8000/api)
  INVOICE_API_TIMEOUT           - Timeout for list/detail/export requests (default: 30s)
  UPLOAD_TIMEOUT                - Timeout for one upload batch (default: 10m)
  UPLOAD_QUEUE_PATH             - Local upload queue file
  UPLOAD_KEEP_QUEUE_ON_FAILURE  - Keep queued files when the backend is unreachable
  GOOGLE_SHEET_URL              - Google Sheet for 'export --sheet'
  LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT, LOG_TIME_FORMAT - Logging`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("api-url", "", "Backend API base URL (overrides INVOICE_API_URL)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout for non-upload calls (overrides INVOICE_API_TIMEOUT)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored status badges")
}

// loadConfig reads the environment configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if apiURL, _ := cmd.Flags().GetString("api-url"); apiURL != "" {
		cfg.APIBaseURL = apiURL
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.APITimeout = timeout
	}
	return cfg, nil
}

// newAPIClient builds the backend client from the effective configuration.
func newAPIClient(cmd *cobra.Command) (*client.Client, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	api, err := client.New(cfg.APIBaseURL, client.WithTimeout(cfg.APITimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return api, cfg, nil
}

// newRenderer returns a table renderer for the command's stdout. Colors are
// used only on a terminal and never with --no-color.
func newRenderer(cmd *cobra.Command) *report.Renderer {
	noColor, _ := cmd.Flags().GetBool("no-color")
	return report.NewRenderer(cmd.OutOrStdout(), report.WithColor(!noColor && isTerminal(os.Stdout)))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// commandContext returns a context canceled on SIGINT/SIGTERM and, when
// timeout > 0, after timeout.
func commandContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	log.Debug().Dur("timeout", timeout).Msg("Command context created")
	return ctx, func() {
		cancel()
		stop()
	}
}

// handleQueryError turns backend read errors into user-facing messages.
func handleQueryError(err error, what string, log zerolog.Logger) error {
	log.Error().Err(err).Str("query", what).Msg("Backend query failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("loading %s timed out. Try increasing --timeout", what)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("loading %s was canceled", what)
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("%s not found", what)
	case errors.Is(err, client.ErrNoResponse):
		return fmt.Errorf("could not reach the invoice backend. Check INVOICE_API_URL or --api-url and that the server is running")
	case errors.Is(err, client.ErrUnexpectedStatus):
		return fmt.Errorf("the backend failed to return %s: %w", what, err)
	case errors.Is(err, client.ErrInvalidResponse):
		return fmt.Errorf("the backend returned an unreadable response for %s: %w", what, err)
	case strings.Contains(err.Error(), "config validation failed"):
		return err
	default:
		return fmt.Errorf("failed to load %s: %w", what, err)
	}
}
