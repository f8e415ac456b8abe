// Package syncback propagates centrally stored owner data back into the
// originating listing tables so the scraper-facing schemas stay complete.
package syncback

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/state"
)

// StateStore lists the terminal rows worth syncing.
type StateStore interface {
	ListSyncTargets(ctx context.Context) ([]state.SyncTarget, error)
}

// OwnerStore looks up owner records.
type OwnerStore interface {
	Get(ctx context.Context, hash string) (*model.OwnerRecord, error)
}

// AdapterResolver maps listing sources to their table adapters.
type AdapterResolver interface {
	Resolve(sourceName string) source.Adapter
}

// Report summarizes one sync-back run.
type Report struct {
	Synced  int
	Skipped int
	Failed  int
}

// Syncer writes owner records back to source tables.
type Syncer struct {
	states   StateStore
	owners   OwnerStore
	resolver AdapterResolver
	log      *zap.Logger
}

// New creates a Syncer.
func New(states StateStore, owners OwnerStore, resolver AdapterResolver) *Syncer {
	return &Syncer{
		states:   states,
		owners:   owners,
		resolver: resolver,
		log:      zap.L().Named("syncback"),
	}
}

// Run pushes every enriched/no_owner_data row with an owner record back to
// its source table. Per-row failures are counted and logged, never fatal.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	targets, err := s.states.ListSyncTargets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "syncback: list targets")
	}
	s.log.Info("starting sync-back", zap.Int("targets", len(targets)))

	report := &Report{}
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "syncback: interrupted")
		}

		adapter := s.resolver.Resolve(target.ListingSource)
		if adapter == nil {
			s.log.Debug("unknown listing source",
				zap.String("hash", target.AddressHash),
				zap.String("source", target.ListingSource))
			report.Skipped++
			continue
		}

		rec, err := s.owners.Get(ctx, target.AddressHash)
		if err != nil {
			s.log.Warn("owner lookup failed",
				zap.String("hash", target.AddressHash), zap.Error(err))
			report.Failed++
			continue
		}
		if rec == nil {
			report.Skipped++
			continue
		}

		if err := adapter.UpdateOwner(ctx, target.AddressHash, rec); err != nil {
			s.log.Warn("source update failed",
				zap.String("hash", target.AddressHash),
				zap.String("table", adapter.Table()),
				zap.Error(err))
			report.Failed++
			continue
		}
		report.Synced++
	}

	s.log.Info("sync-back complete",
		zap.Int("synced", report.Synced),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}
