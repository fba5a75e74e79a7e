package cli

import (
	"github.com/spf13/cobra"

	"lnstats/internal/app"
)

var backfillDryRun bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild the daily network series from channel history",
	Long: "Rebuild the daily network series from the configured epoch to today.\n" +
		"Does nothing if any network sample already exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backfill(cmd.Context(), app.BackfillOptions{DryRun: backfillDryRun})
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Print the computed series without writing it")
}
