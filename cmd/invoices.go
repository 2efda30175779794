package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/filter"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "List extracted invoices, optionally filtered",
	Long: `List the invoices extracted by the backend.

Filters are sent only when they are set: an empty or blank --vendor adds no
vendor filter. --payment-status accepts paid, pending or unknown (any case).
Missing values are shown as '—'.`,
	Example: `  # All invoices
  invoicectl invoices

  # Only pending invoices from one vendor
  invoicectl invoices --vendor "Acme Corp" --payment-status pending

  # Clear every filter
  invoicectl invoices --vendor Acme --reset

  # Machine-readable output
  invoicectl invoices --json`,
	Args: cobra.NoArgs,
	RunE: runInvoices,
}

var invoiceGetCmd = &cobra.Command{
	Use:   "get [invoice-id]",
	Short: "Show one invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceGet,
}

func init() {
	rootCmd.AddCommand(invoicesCmd)
	invoicesCmd.AddCommand(invoiceGetCmd)

	invoicesCmd.Flags().String("vendor", "", "Filter by vendor name")
	invoicesCmd.Flags().String("payment-status", "", "Filter by payment status ("+strings.Join(filter.PaymentStatuses, ", ")+")")
	invoicesCmd.Flags().Bool("reset", false, "Ignore all filters and list everything")
	invoicesCmd.Flags().Bool("json", false, "Print JSON instead of a table")

	invoiceGetCmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

func runInvoices(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoices")

	vendor, _ := cmd.Flags().GetString("vendor")
	paymentStatus, _ := cmd.Flags().GetString("payment-status")
	reset, _ := cmd.Flags().GetBool("reset")
	asJSON, _ := cmd.Flags().GetBool("json")

	api, cfg, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0, log)
	defer cancel()

	controller := filter.NewController(api)
	criteria := filter.Criteria{Vendor: vendor, PaymentStatus: paymentStatus}

	log.Info().
		Str("api_url", cfg.APIBaseURL).
		Str("vendor", vendor).
		Str("payment_status", paymentStatus).
		Bool("reset", reset).
		Msg("Listing invoices")

	if reset {
		_, err = controller.Reset(ctx)
	} else {
		_, err = controller.Apply(ctx, criteria)
	}

	var validationErr *filter.ValidationError
	if errors.As(err, &validationErr) {
		return fmt.Errorf("invalid --payment-status %q: must be one of %s",
			validationErr.Value, strings.Join(filter.PaymentStatuses, ", "))
	}

	invoices := controller.Invoices()
	if asJSON {
		if jsonErr := writeJSON(cmd.OutOrStdout(), invoices); jsonErr != nil {
			return jsonErr
		}
	} else {
		newRenderer(cmd).Invoices(invoices)
	}

	if err != nil {
		return handleQueryError(err, "invoices", log)
	}
	return nil
}

func runInvoiceGet(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoices")

	asJSON, _ := cmd.Flags().GetBool("json")

	api, _, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0, log)
	defer cancel()

	inv, err := api.GetInvoice(ctx, args[0])
	if err != nil {
		return handleQueryError(err, "invoice "+args[0], log)
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), inv)
	}
	newRenderer(cmd).Invoice(*inv)
	return nil
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// logQueryWarning records a non-fatal load failure.
func logQueryWarning(log zerolog.Logger, what string, err error) {
	log.Warn().Err(err).Str("query", what).Msg("Optional data could not be loaded")
}
