package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"opns/internal/payment"
)

// resume <url>: finish a checkout when the return URL was opened elsewhere.
func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <url>",
		Short: "Finish a hosted checkout from its return URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := appCtx.Orchestrator.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Outcome == payment.ResumeNone {
				fmt.Fprintln(cmd.OutOrStdout(), "no checkout to finish")
			}
			return nil
		},
	}
}
