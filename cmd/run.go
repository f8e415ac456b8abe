package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.uber.org/zap"
)

var (
	runMaxItems       int
	runPrioritySource string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process queued addresses under the daily budget",
	Long:  "Claims queue entries one at a time, tries the free resolution paths first, then spends on BatchData skip-trace calls until the item limit or daily cap is reached.",
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

		summary, err := initWorker(pool, registry).Run(ctx, runMaxItems, runPrioritySource)
		if err != nil {
			return err
		}

		zap.L().Info("worker summary",
			zap.Int("processed", summary.Processed),
			zap.Int("enriched", summary.Enriched),
			zap.Int("no_owner_data", summary.NoOwnerData),
			zap.Int("orphaned", summary.Orphaned),
			zap.Int("failed", summary.Failed),
			zap.Int("paid_calls", summary.PaidCalls),
			zap.Int("daily_usage", summary.DailyUsage),
			zap.Float64("estimated_cost_today", summary.EstimatedCost))
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxItems, "max-items", 50, "maximum queue entries to process this run")
	runCmd.Flags().StringVar(&runPrioritySource, "priority-source", "", "only claim entries from this listing source")
	rootCmd.AddCommand(runCmd)
}
