package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx.Session.Disconnect(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return nil
		},
	}
}
