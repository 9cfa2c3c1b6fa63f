package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"VaultLedger/internal/app"
)

var (
	historyLimit int
	historyOwner string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display rate updates, or one owner's deposits and withdrawals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		owner, err := parseOwner(historyOwner, false)
		if err != nil {
			return err
		}
		return getApp().History(cmd.Context(), app.HistoryOptions{Owner: owner, Limit: historyLimit}, cmd.OutOrStdout())
	},
}

var historyRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Refold the history projections from the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := getApp().RebuildHistory(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "folded %d events\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of entries to display")
	historyCmd.Flags().StringVar(&historyOwner, "owner", "", "Show ledger activity for this owner (UUID)")
	historyCmd.AddCommand(historyRebuildCmd)
}
