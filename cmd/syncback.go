package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/state"
	"github.com/sells-group/enrich-cli/internal/syncback"
)

var syncBackCmd = &cobra.Command{
	Use:   "sync-back",
	Short: "Write owner records back into the source listing tables",
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

		report, err := syncback.New(state.NewStore(pool), owner.NewStore(pool), registry).Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("sync-back summary",
			zap.Int("synced", report.Synced),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncBackCmd)
}
