package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lnstats/internal/app"
	"lnstats/internal/storage"
)

var (
	showLimit int
	showNode  string
	showTop   string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent network samples, a node's history, or top nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Node:  showNode,
		}

		switch storage.TopOrder(showTop) {
		case "":
		case storage.TopByCapacity, storage.TopByChannels:
			opts.Top = storage.TopOrder(showTop)
		default:
			return fmt.Errorf("--top must be %q or %q", storage.TopByCapacity, storage.TopByChannels)
		}

		if opts.Node != "" && opts.Top != "" {
			return fmt.Errorf("--node and --top are mutually exclusive")
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().StringVar(&showNode, "node", "", "Show stats history for this node public key")
	showCmd.Flags().StringVar(&showTop, "top", "", "Rank nodes by latest sample: capacity or channels")
}
