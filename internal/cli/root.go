// Package cli holds the presenca command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// EnvFile is the dotenv file loaded before reading PRESENCA_* variables.
	EnvFile string
}

// NewRootCommand creates the root command for the presenca CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "presenca",
		Short: "Presença - agenda de treinos",
		Long:  "Class booking service for a small gym: sessions, attendance confirmations and student records.",
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", defaultEnvFile(), "dotenv file read before the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))

	return cmd
}

func defaultEnvFile() string {
	if path := os.Getenv("PRESENCA_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}
