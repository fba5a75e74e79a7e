package cli

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the live graph into the nodes and channels tables",
	Long: "Fetch the graph from the configured source, upsert every node and channel,\n" +
		"and mark stored open channels missing from the graph as closed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context())
	},
}
