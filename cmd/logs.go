package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/upload"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the upload history",
	Long: `Show the upload history recorded by the backend, most recent first:
file name, file type, records extracted and status.`,
	Example: `  # The 10 most recent uploads
  invoicectl logs

  # Everything
  invoicectl logs --limit 0`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int("limit", upload.RecentLogLimit, "Number of entries to show (0 = all)")
	logsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

func runLogs(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("logs")

	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	api, _, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0, log)
	defer cancel()

	logs, err := api.ListLogs(ctx)
	if err != nil {
		return handleQueryError(err, "upload history", log)
	}

	if asJSON {
		if limit > 0 && len(logs) > limit {
			logs = logs[:limit]
		}
		return writeJSON(cmd.OutOrStdout(), logs)
	}
	newRenderer(cmd).Logs(logs, limit)
	return nil
}
