package commands

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"opns/internal/app"
	"opns/pkg/config"
	"opns/pkg/logger"
)

// skipApp marks commands that do not need the wallet and store.
const skipApp = "skip-app"

var (
	envFile string
	offline bool
	verbose bool

	cfg    *config.Config
	log    logger.Logger
	appCtx *app.App
)

func Execute() error {
	root := &cobra.Command{
		Use:          "opns",
		Short:        "Find and buy 1sat names",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			cfg = config.Load()
			level := logger.ParseLevel(cfg.LogLevel)
			if !verbose && level < logger.LevelWarn {
				level = logger.LevelWarn
			}
			log = logger.NewWithWriter("opns", level, cmd.ErrOrStderr())

			if cmd.Annotations[skipApp] == "true" {
				return nil
			}
			if err := cfg.ValidateCore(); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, log, app.Options{
				Out:     cmd.OutOrStdout(),
				Offline: offline,
			})
			if err != nil {
				return err
			}
			appCtx = a
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	root.PersistentFlags().BoolVar(&offline, "offline", false, "do not dial the wallet bridge")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at LOG_LEVEL instead of warn")

	root.AddCommand(checkCmd(), connectCmd(), buyCmd(), namesCmd(), resumeCmd(), serveCmd(), disconnectCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ExecuteContext(ctx)
	if appCtx != nil {
		if cerr := appCtx.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
