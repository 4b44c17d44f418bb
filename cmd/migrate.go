package main

import (
	"homesync/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := database.Migrate(a.db); err != nil {
			return err
		}
		a.logger.Info("schema migrated")
		return nil
	},
}
