package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"opns/internal/domain"
	"opns/internal/handle"
	"opns/internal/payment"
)

// check <name>: look a name up once.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Show whether a name is available, listed or taken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := appCtx.Resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCandidate(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func printCandidate(w io.Writer, c domain.NameCandidate) {
	name := handle.Qualify(c.Handle, cfg.Name.Domain)
	switch c.Status {
	case domain.StatusAvailable:
		fmt.Fprintf(w, "%s is available for $%s\n", name, cfg.Payment.PriceUSD.String())
	case domain.StatusRegisteredListed:
		total := payment.Total(c.ListingPrice, cfg.Payment.MarketplaceFeeRate)
		fmt.Fprintf(w, "%s is listed for %d sats (%d with fees), outpoint %s\n", name, c.ListingPrice, total, c.ListingOutpoint)
	case domain.StatusRegisteredUnlisted:
		fmt.Fprintf(w, "%s is taken and not for sale\n", name)
	case domain.StatusChecking:
		fmt.Fprintf(w, "checking %s...\n", name)
	case domain.StatusFailed:
		fmt.Fprintf(w, "could not check %s: %v (type :retry)\n", name, c.Err)
	default:
		if c.Handle != "" && len(c.Handle) < handle.MinLength {
			fmt.Fprintf(w, "%s is too short\n", c.Handle)
		}
	}
}
