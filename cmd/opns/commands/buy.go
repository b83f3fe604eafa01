package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"opns/internal/domain"
	"opns/internal/payment"
)

// buy <name>: resolve, then buy through the rail the status allows.
func buyCmd() *cobra.Command {
	var (
		rail string
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "buy <name>",
		Short: "Buy a name by card, wallet payment or marketplace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidatePayments(); err != nil {
				return err
			}
			pref, err := domain.ParseRail(rail)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := appCtx.Resolver.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			printCandidate(cmd.OutOrStdout(), c)

			// the return server must be up before the browser leaves
			var cs *callbackServer
			if wait && c.Status == domain.StatusAvailable && pref == domain.RailHostedCheckout {
				if cs, err = startCallbackServer(); err != nil {
					return err
				}
				defer cs.shutdown()
			}

			intent, err := appCtx.Orchestrator.Buy(ctx, c, pref)
			if err != nil {
				return err
			}
			if intent.State != domain.IntentInFlight || cs == nil {
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "waiting for checkout to finish...")
			select {
			case res := <-cs.ret.Results():
				if res.Outcome == payment.ResumeRegistrationPending {
					return fmt.Errorf("payment for %s succeeded but registration is pending", res.Handle)
				}
				return nil
			case err := <-cs.errs:
				return err
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "stopped waiting; run `opns resume <url>` with the return URL to finish")
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&rail, "rail", "checkout", "payment rail for available names: checkout or wallet")
	cmd.Flags().BoolVar(&wait, "wait", true, "serve the return URL and wait for hosted checkout to finish")
	return cmd
}
