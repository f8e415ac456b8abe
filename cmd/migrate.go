package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/state"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the enrichment state and owner record tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := state.NewStore(pool).Migrate(ctx); err != nil {
			return err
		}
		if err := owner.NewStore(pool).Migrate(ctx); err != nil {
			return err
		}

		zap.L().Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
