package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth, status breakdown, and today's spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		states := state.NewStore(pool)

		counts, err := states.StatusCounts(ctx)
		if err != nil {
			return err
		}
		eligible, err := states.CountEligible(ctx, "")
		if err != nil {
			return err
		}
		usage, err := states.CountDailyUsage(ctx, time.Now())
		if err != nil {
			return err
		}
		ownerCount, err := owner.NewStore(pool).Count(ctx)
		if err != nil {
			return err
		}

		fmt.Println("Enrichment state:")
		order := []model.Status{
			model.StatusNeverChecked, model.StatusChecking, model.StatusEnriched,
			model.StatusNoOwnerData, model.StatusFailed, model.StatusOrphaned,
		}
		total := 0
		for _, s := range order {
			if n := counts[s]; n > 0 {
				fmt.Printf("  %-14s %d\n", s, n)
				total += n
			}
		}
		fmt.Printf("  %-14s %d\n", "total", total)

		fmt.Printf("\nEligible for enrichment: %d\n", eligible)
		fmt.Printf("Owner records:           %d\n", ownerCount)
		fmt.Printf("Paid lookups today:      %d / %d ($%.2f)\n",
			usage, cfg.BatchData.DailyLimit, float64(usage)*cfg.BatchData.CostPerCall)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
