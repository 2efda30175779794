package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("health")

	api, _, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0, log)
	defer cancel()

	status, err := api.Health(ctx)
	if err != nil {
		return handleQueryError(err, "health status", log)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", api.BaseURL(), status)
	return nil
}
