package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghmassaro/presenca-treino/internal/config"
	"github.com/ghmassaro/presenca-treino/internal/logging"
	"github.com/ghmassaro/presenca-treino/internal/persistence/sqlite"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Long: `Apply the embedded schema migrations to the database at PRESENCA_SQLITE_PATH.

With --status nothing is applied; the current version and the pending
migrations are listed instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(rootOpts.EnvFile)
			if err != nil {
				return err
			}
			if cfg.Store != config.StoreSQLite {
				return fmt.Errorf("migrate requires PRESENCA_STORE=%s, got %q", config.StoreSQLite, cfg.Store)
			}
			logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath), sqlite.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer storage.Close()

			out := cmd.OutOrStdout()
			if statusOnly {
				status, err := storage.MigrationStatus(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "current version: %s\n", displayVersion(status.CurrentVersion))
				fmt.Fprintf(out, "pending: %d\n", status.PendingCount)
				for _, m := range status.PendingMigrations {
					fmt.Fprintf(out, "  %s %s\n", m.Version, m.Description)
				}
				return nil
			}

			applied, err := storage.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			fmt.Fprintf(out, "applied %d migration(s) to %s\n", applied, cfg.SQLitePath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "show migration status without applying")
	return cmd
}

func displayVersion(version string) string {
	if version == "" {
		return "none"
	}
	return version
}
