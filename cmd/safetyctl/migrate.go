package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/safetyline/internal"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|status>",
	Short: "Apply, roll back or list the Postgres schema migrations",
	Long: `Manage the embedded goose migrations: the document collection tables
and the job queue.

  up      apply every pending migration
  down    roll back the most recent migration
  status  list each migration and whether it is applied`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		switch args[0] {
		case "up":
			err = internal.RunMigrations(db)
		case "down":
			err = internal.RollbackMigration(db)
		case "status":
			err = internal.MigrationStatus(db)
		default:
			return fmt.Errorf("unknown migrate action %q (want up, down or status)", args[0])
		}
		if err != nil {
			return fmt.Errorf("migrate %s: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
