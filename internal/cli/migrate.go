package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"oddcert/internal/platform/config"
	platformpg "oddcert/internal/platform/postgres"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  "Applies the schema to DATABASE_URL. Every statement is idempotent, so it is safe to run on each deploy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		if cfg.Postgres.URL == "" {
			return errNoDatabase
		}
		db, err := platformpg.Open(cmd.Context(), platformpg.Config{URL: cfg.Postgres.URL})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := platformpg.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}
