package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/ingest"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/state"
)

var (
	ingestFile   string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register scraped listings from a JSON file",
	Long:  "Reads a JSON array of listings and routes each through the enrichment manager: complete owner data becomes a terminal state, everything else queues for the worker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", ingestFile)
		}
		var listings []model.Listing
		if err := json.Unmarshal(data, &listings); err != nil {
			return eris.Wrapf(err, "parse %s", ingestFile)
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		manager := ingest.NewManager(state.NewStore(pool), owner.NewStore(pool))

		processed, skipped := 0, 0
		for _, listing := range listings {
			hash, err := manager.ProcessListing(ctx, listing, ingestSource)
			if err != nil {
				zap.L().Error("listing failed", zap.String("address", listing.Address), zap.Error(err))
				continue
			}
			if hash == "" {
				skipped++
				continue
			}
			processed++
		}

		zap.L().Info("ingest complete",
			zap.Int("processed", processed),
			zap.Int("skipped", skipped),
			zap.String("source", ingestSource))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to JSON array of listings")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "listing source name (e.g. Trulia, Zillow FSBO)")
	_ = ingestCmd.MarkFlagRequired("file")
	_ = ingestCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(ingestCmd)
}
