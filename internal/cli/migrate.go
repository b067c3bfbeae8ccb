package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		db, err := database.Connect(cmd.Context(), cfg.Database(), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(cfg.DatabaseName, db.SQL())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
