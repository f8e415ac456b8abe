package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/backfill"
	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/state"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Queue un-enriched addresses from all listing tables",
	Long:  "Scans every listing table, repairs stale stored hashes, and enqueues addresses that have neither a state row nor a complete owner record. Safe to re-run.",
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

		queuer := backfill.NewQueuer(pool, registry.All(),
			state.NewStore(pool), owner.NewStore(pool),
			cfg.Backfill.PageSize, cfg.Backfill.Concurrency)

		report, err := queuer.Run(ctx)
		if err != nil {
			return err
		}

		fields := []zap.Field{
			zap.Int("queued", report.Queued),
			zap.Int("hashes_repaired", report.Repaired),
		}
		for table, n := range report.PerTable {
			fields = append(fields, zap.Int(table, n))
		}
		zap.L().Info("backfill summary", fields...)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}
