package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"opns/internal/domain"
	"opns/pkg/errors"
)

// connect: connect the wallet and print what it shared.
func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet and show its addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := appCtx.Session.Connect(ctx); err != nil {
				return err
			}
			s := appCtx.Session.Snapshot()
			if !s.IsConnected() {
				return errors.NewConnection("connect", "wallet declined the connection", errors.ErrNotConnected)
			}
			appCtx.Session.RefreshAddresses(ctx)
			appCtx.Session.RefreshProfile(ctx)
			printSession(cmd, appCtx.Session.Snapshot())
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, s domain.WalletSession) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "state:    %s\n", s.State)
	if !s.IsConnected() {
		return
	}
	fmt.Fprintf(w, "pubkey:   %s\n", s.PublicKey)
	if s.Profile.DisplayName != "" {
		fmt.Fprintf(w, "name:     %s\n", s.Profile.DisplayName)
	}
	if s.AddressesValid {
		fmt.Fprintf(w, "payment:  %s\n", s.Addresses.Payment)
		fmt.Fprintf(w, "ordinals: %s\n", s.Addresses.Ordinal)
		fmt.Fprintf(w, "identity: %s\n", s.Addresses.Identity)
	}
}
