package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/dashboard"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/report"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/upload"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show invoice totals, payment status, top vendors and monthly volume",
	Long: `Show the invoice dashboard.

The dashboard is computed locally from the full invoice list:
  - total invoices and total value, paid and pending value
  - payment status split (paid, pending, unknown)
  - top 8 vendors by invoice count
  - invoices per upload month

Invoices without a total count as zero. The recent upload history is shown
below the dashboard when it can be loaded.`,
	Example: `  # Show the dashboard
  invoicectl dashboard

  # Save it as a workbook with charts
  invoicectl dashboard --xlsx dashboard.xlsx

  # Machine-readable output
  invoicectl dashboard --json`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().Bool("json", false, "Print the dashboard as JSON")
	dashboardCmd.Flags().String("xlsx", "", "Also write the dashboard to this XLSX file")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("dashboard")

	asJSON, _ := cmd.Flags().GetBool("json")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")

	api, _, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0, log)
	defer cancel()

	// Each fetch keeps its own error so one failure does not cancel the other.
	var (
		invoices    []models.Invoice
		logs        []models.UploadLogEntry
		invoicesErr error
		logsErr     error
		g           errgroup.Group
	)
	g.Go(func() error {
		invoices, invoicesErr = api.ListInvoices(ctx, nil)
		return nil
	})
	g.Go(func() error {
		logs, logsErr = api.ListLogs(ctx)
		return nil
	})
	_ = g.Wait()

	if invoicesErr != nil {
		invoices = []models.Invoice{}
	}
	summary := dashboard.Compute(invoices)

	log.Info().
		Int("invoices", summary.Totals.Count).
		Str("total_value", summary.Totals.TotalValue.StringFixed(2)).
		Msg("Dashboard computed")

	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		renderer := newRenderer(cmd)
		renderer.Dashboard(summary)
		if logsErr == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "\nRecent uploads")
			renderer.Logs(logs, upload.RecentLogLimit)
		}
	}
	if logsErr != nil {
		logQueryWarning(log, "upload history", logsErr)
	}

	if xlsxPath != "" {
		if err := writeDashboardFile(xlsxPath, invoices, summary); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Dashboard written to %s\n", xlsxPath)
	}

	if invoicesErr != nil {
		return handleQueryError(invoicesErr, "invoices", log)
	}
	return nil
}

func writeDashboardFile(path string, invoices []models.Invoice, summary dashboard.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := report.WriteDashboardXLSX(f, invoices, summary); err != nil {
		f.Close()
		return fmt.Errorf("failed to write dashboard workbook: %w", err)
	}
	return f.Close()
}
