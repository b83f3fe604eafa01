package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// names: list the names held by the connected wallet.
func namesCmd() *cobra.Command {
	var (
		limit int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "names",
		Short: "List the names in your wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if !appCtx.Session.Snapshot().IsConnected() {
				if err := appCtx.Session.Connect(ctx); err != nil {
					return err
				}
			}

			found := 0
			from := ""
			for {
				names, next, err := appCtx.Session.OwnedNames(ctx, cfg.Name.Domain, from, limit)
				if err != nil {
					return fmt.Errorf("failed to load your names: %w", err)
				}
				for _, n := range names {
					fmt.Fprintf(out, "%s\t%s\n", n.Name, n.Outpoint)
				}
				found += len(names)
				if next == "" {
					break
				}
				if !all {
					fmt.Fprintln(out, "more names available; use --all to list them")
					break
				}
				from = next
			}
			if found == 0 {
				fmt.Fprintf(out, "no %s names in this wallet\n", cfg.Name.Domain)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "names requested per page")
	cmd.Flags().BoolVar(&all, "all", false, "follow every page")
	return cmd
}
