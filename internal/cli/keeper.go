package cli

import (
	"github.com/spf13/cobra"
)

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Periodically accrue the oracle rate on a running service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunKeeper(cmd.Context())
	},
}
