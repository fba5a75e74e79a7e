package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lnstats/internal/app"
)

var inspectNode string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Compute a node's fee distribution from its current channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectNode == "" {
			return fmt.Errorf("--node must be provided")
		}
		return getApp().Inspect(cmd.Context(), app.InspectOptions{Node: inspectNode})
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectNode, "node", "", "Node public key")
}
