package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"opns/internal/domain"
	"opns/internal/payment"
)

const promptHelp = `type a name to check it; commands:
  :buy [checkout|wallet]  buy the current name
  :retry                  check the current name again
  :connect                connect the wallet
  :disconnect             disconnect the wallet
  :whoami                 show the wallet session
  :quit                   exit`

// serve: run the return server and read names from stdin, checking each as
// it is typed.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout return server with a live prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cs, err := startCallbackServer()
			if err != nil {
				return err
			}
			defer cs.shutdown()

			appCtx.Resolver.OnChange(func(c domain.NameCandidate) {
				printCandidate(out, c)
			})

			lines := make(chan string)
			go readLines(cmd.InOrStdin(), lines)

			fmt.Fprintln(out, promptHelp)
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-cs.errs:
					return err
				case res := <-cs.ret.Results():
					if res.Outcome == payment.ResumeAcquired {
						appCtx.Resolver.Refresh()
					}
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if quit := handleLine(ctx, cmd, line); quit {
						return nil
					}
				}
			}
		},
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

// handleLine runs one prompt line and reports whether to quit.
func handleLine(ctx context.Context, cmd *cobra.Command, line string) bool {
	out := cmd.OutOrStdout()
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		appCtx.Resolver.Check(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":retry":
		appCtx.Resolver.Retry(ctx)
	case ":connect":
		if err := appCtx.Session.Connect(ctx); err != nil {
			fmt.Fprintln(out, "error:", err)
			return false
		}
		printSession(cmd, appCtx.Session.Snapshot())
	case ":disconnect":
		appCtx.Session.Disconnect(ctx)
	case ":whoami":
		printSession(cmd, appCtx.Session.Snapshot())
	case ":buy":
		rail := "checkout"
		if len(fields) > 1 {
			rail = fields[1]
		}
		pref, err := domain.ParseRail(rail)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return false
		}
		if err := cfg.ValidatePayments(); err != nil {
			fmt.Fprintln(out, "error:", err)
			return false
		}
		// purchases run in the background so the prompt stays live
		c := appCtx.Resolver.Current()
		go func() {
			if _, err := appCtx.Orchestrator.Buy(ctx, c, pref); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		}()
	default:
		fmt.Fprintln(out, promptHelp)
	}
	return false
}
