package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/repair"
	"github.com/sells-group/enrich-cli/internal/state"
)

var repairExecute bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Re-derive address hashes after a normalization change",
	Long:  "Recomputes every stored hash from the raw address and rewrites state rows, owner records, and listing tables. Colliding rows are merged by status priority. Without --execute, only reports intended changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		registry, err := initRegistry(pool)
		if err != nil {
			return err
		}

		runner := repair.New(state.NewStore(pool), owner.NewStore(pool),
			registry.All(), cfg.Backfill.PageSize, repairExecute)

		report, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("repair summary",
			zap.Bool("executed", repairExecute),
			zap.Int("states_rekeyed", report.StatesRekeyed),
			zap.Int("states_merged", report.StatesMerged),
			zap.Int("owners_moved", report.OwnersMoved),
			zap.Int("source_rows_repaired", report.SourceRepaired),
			zap.Int("skipped", report.Skipped))
		return nil
	},
}

func init() {
	repairCmd.Flags().BoolVar(&repairExecute, "execute", false, "apply changes instead of reporting them")
	rootCmd.AddCommand(repairCmd)
}
