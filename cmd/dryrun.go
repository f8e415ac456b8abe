package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Show what a worker run would cost, without spending",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		registry, err := initRegistry(pool)
		if err != nil {
			return err
		}

		report, err := initWorker(pool, registry).DryRun(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Eligible addresses:  %d\n", report.Eligible)
		fmt.Printf("Would process today: %d (daily limit %d)\n", report.WouldProcess, cfg.BatchData.DailyLimit)
		fmt.Printf("Cost if processed:   $%.2f\n", report.EstimatedCost)
		if len(report.Sample) > 0 {
			fmt.Println("\nSample:")
			for _, st := range report.Sample {
				fmt.Printf("  %s  %-14s %s\n", st.AddressHash[:8], st.ListingSource, st.NormalizedAddress)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
}
