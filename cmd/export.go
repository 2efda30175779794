package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/dashboard"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/sheets"
)

// dashboardWorksheet is the worksheet the dashboard is published to.
const dashboardWorksheet = "Dashboard"

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the consolidated spreadsheet or publish it to Google Sheets",
	Long: `Download the backend's consolidated invoice spreadsheet.

The file is saved as delivered by the backend. With --sheet the invoice list
and the dashboard are also published to a Google Sheet, replacing the
contents of the target worksheets.

Google Sheets publishing requires:
  GOOGLE_SHEET_URL - Target spreadsheet URL (or --sheet-url)
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Save the export in the current directory
  invoicectl export

  # Save it under a specific name
  invoicectl export -o invoices-2024.xlsx

  # Only publish to Google Sheets
  invoicectl export --sheet --no-download`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output file path (default: name given by the backend)")
	exportCmd.Flags().Bool("sheet", false, "Publish invoices and dashboard to Google Sheets")
	exportCmd.Flags().String("sheet-url", "", "Google Sheet URL (overrides GOOGLE_SHEET_URL)")
	exportCmd.Flags().String("worksheet", "", "Worksheet for the invoice list (overrides GOOGLE_SHEET_WORKSHEET)")
	exportCmd.Flags().Bool("no-download", false, "Skip downloading the spreadsheet")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export")

	outputPath, _ := cmd.Flags().GetString("output")
	publish, _ := cmd.Flags().GetBool("sheet")
	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	noDownload, _ := cmd.Flags().GetBool("no-download")

	api, cfg, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	if sheetURL == "" {
		sheetURL = cfg.GoogleSheetURL
	}
	if worksheet == "" {
		worksheet = cfg.GoogleSheetWorksheet
	}
	if publish && sheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable or --sheet-url is required for --sheet")
	}

	ctx, cancel := commandContext(0, log)
	defer cancel()

	if !noDownload {
		if err := downloadExport(ctx, cmd, api, outputPath, log); err != nil {
			return err
		}
	}

	if publish {
		if err := publishToSheet(ctx, cmd, api, sheetURL, worksheet, log); err != nil {
			return handleExportError(err, log)
		}
	}
	return nil
}

// downloadExport streams GET /export into a temporary file next to the
// target and renames it once complete.
func downloadExport(ctx context.Context, cmd *cobra.Command, api *client.Client, outputPath string, log zerolog.Logger) error {
	dir := "."
	if outputPath != "" {
		dir = filepath.Dir(outputPath)
	}

	tmp, err := os.CreateTemp(dir, ".invoicectl-export-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	info, err := api.Export(ctx, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return handleQueryError(err, "export", log)
	}

	if outputPath == "" {
		outputPath = filepath.Base(info.Filename)
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return fmt.Errorf("failed to save export to %s: %w", outputPath, err)
	}

	log.Info().
		Str("file", outputPath).
		Int64("bytes", info.Bytes).
		Str("content_type", info.ContentType).
		Msg("Export saved")

	fmt.Fprintf(cmd.OutOrStdout(), "Export saved to %s (%s)\n", outputPath, humanize.Bytes(uint64(info.Bytes)))
	return nil
}

func publishToSheet(ctx context.Context, cmd *cobra.Command, api *client.Client, sheetURL, worksheet string, log zerolog.Logger) error {
	invoices, err := api.ListInvoices(ctx, nil)
	if err != nil {
		return err
	}

	publisher, err := sheets.NewPublisher(ctx, sheetURL)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Writing data to Google Sheet...")

	rows, err := publisher.PublishInvoices(ctx, worksheet, invoices)
	if err != nil {
		return err
	}
	if err := publisher.PublishDashboard(ctx, dashboardWorksheet, dashboard.Compute(invoices)); err != nil {
		return err
	}

	log.Info().
		Str("spreadsheet_id", publisher.SpreadsheetID()).
		Int("rows", rows).
		Msg("Published to Google Sheet")

	fmt.Fprintf(cmd.OutOrStdout(), "Sheet: %s (%d rows), %s\n", worksheet, rows, dashboardWorksheet)
	fmt.Fprintf(cmd.OutOrStdout(), "URL: %s\n", sheetURL)
	return nil
}

// handleExportError turns publishing errors into user-facing messages.
func handleExportError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Publishing to Google Sheets failed")

	errStr := err.Error()

	switch {
	case client.IsTransport(err) || errors.Is(err, client.ErrNotFound):
		return handleQueryError(err, "invoices", log)
	case errors.Is(err, sheets.ErrInvalidSheetURL):
		return fmt.Errorf("invalid Google Sheets URL. Expected https://docs.google.com/spreadsheets/d/<id>/...")
	case errors.Is(err, sheets.ErrMissingCredentials):
		return fmt.Errorf("Google authentication is not configured:\n\n" +
			"1. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path\n" +
			"2. Or set GOOGLE_CREDENTIALS with inline JSON credentials\n" +
			"3. Share the spreadsheet with the service account's email address")
	case strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "failed to parse credentials"):
		return fmt.Errorf("Google authentication failed. Please check your credentials: %w", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "403"):
		return fmt.Errorf("permission denied. Share the spreadsheet with the service account's email address")
	default:
		return fmt.Errorf("failed to write to Google Sheet: %w", err)
	}
}
