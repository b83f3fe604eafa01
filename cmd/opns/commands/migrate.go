package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"opns/internal/app"
	"opns/internal/repository/postgres"
)

// migrate [up|down|version]: manage the pending store schema.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "migrate [up|down|version]",
		Short:       "Apply the postgres schema for the pending store",
		Args:        cobra.MaximumNArgs(1),
		ValidArgs:   []string{"up", "down", "version"},
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL environment variable is required")
			}
			db, err := app.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			dir := "up"
			if len(args) == 1 {
				dir = args[0]
			}
			switch dir {
			case "up", "down":
				if err := postgres.Migrate(db, postgres.Direction(dir)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied\n", dir)
			case "version":
				v, dirty, err := postgres.Version(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty: %t)\n", v, dirty)
			default:
				return fmt.Errorf("unknown migration command %q", dir)
			}
			return nil
		},
	}
}
