// Package worker drains the enrichment queue under a daily spend cap. Each
// claimed address goes through free resolution paths first (existence check,
// smart-skip from the source table) and only then a paid skip-trace call.
// Every path ends in a terminal status; nothing is ever retried.
package worker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/address"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/state"
	"github.com/sells-group/enrich-cli/pkg/batchdata"
)

// StateStore is the slice of the state machine the worker needs.
type StateStore interface {
	AcquireNext(ctx context.Context, prioritySource string) (*model.EnrichmentState, error)
	ClearStaleLocks(ctx context.Context, olderThan time.Duration) (int64, error)
	CountDailyUsage(ctx context.Context, now time.Time) (int, error)
	CountEligible(ctx context.Context, prioritySource string) (int, error)
	SampleEligible(ctx context.Context, n int) ([]model.EnrichmentState, error)
	MarkTerminal(ctx context.Context, hash string, upd state.TerminalUpdate) error
}

// OwnerStore persists owner records.
type OwnerStore interface {
	Upsert(ctx context.Context, rec *model.OwnerRecord) error
}

// AdapterResolver maps listing sources to their table adapters.
type AdapterResolver interface {
	Resolve(sourceName string) source.Adapter
}

// Config governs the worker's spend and lock handling.
type Config struct {
	Enabled          bool
	DailyLimit       int
	DryRun           bool
	CostPerCall      float64
	StaleLockTimeout time.Duration
}

// Summary reports one Run.
type Summary struct {
	Processed     int
	Enriched      int
	NoOwnerData   int
	Orphaned      int
	Failed        int
	PaidCalls     int
	DailyUsage    int
	EstimatedCost float64
}

// DryRunReport describes what a real run would do, without writes or network.
// EstimatedCost prices the whole eligible backlog; WouldProcess is the slice
// of it today's remaining budget allows.
type DryRunReport struct {
	Eligible      int
	WouldProcess  int
	EstimatedCost float64
	Sample        []model.EnrichmentState
}

// Worker processes queued addresses one at a time.
type Worker struct {
	cfg      Config
	states   StateStore
	owners   OwnerStore
	resolver AdapterResolver
	client   batchdata.Client
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Worker.
func New(cfg Config, states StateStore, owners OwnerStore, resolver AdapterResolver, client batchdata.Client) *Worker {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 50
	}
	if cfg.CostPerCall <= 0 {
		cfg.CostPerCall = 0.085
	}
	if cfg.StaleLockTimeout <= 0 {
		cfg.StaleLockTimeout = 15 * time.Minute
	}
	return &Worker{
		cfg:      cfg,
		states:   states,
		owners:   owners,
		resolver: resolver,
		client:   client,
		log:      zap.L().Named("worker"),
		now:      time.Now,
	}
}

// Run drains up to maxRuns queue entries, bounded by the remaining daily
// budget. Per-item failures are committed as terminal states and never abort
// the loop.
func (w *Worker) Run(ctx context.Context, maxRuns int, prioritySource string) (*Summary, error) {
	log := w.log.With(zap.String("run_id", uuid.NewString()))

	if cleared, err := w.states.ClearStaleLocks(ctx, w.cfg.StaleLockTimeout); err != nil {
		log.Warn("stale lock sweep failed", zap.Error(err))
	} else if cleared > 0 {
		log.Info("released stale locks", zap.Int64("count", cleared))
	}

	if w.cfg.DryRun {
		report, err := w.DryRun(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("dry run, no lookups performed",
			zap.Int("eligible", report.Eligible),
			zap.Int("would_process", report.WouldProcess),
			zap.Float64("estimated_cost", report.EstimatedCost))
		return &Summary{}, nil
	}

	if !w.cfg.Enabled {
		log.Warn("provider disabled, nothing to do")
		return &Summary{}, nil
	}

	usage, err := w.states.CountDailyUsage(ctx, w.now())
	if err != nil {
		return nil, eris.Wrap(err, "worker: count daily usage")
	}

	remaining := w.cfg.DailyLimit - usage
	if remaining <= 0 {
		log.Warn("daily budget exhausted",
			zap.Int("usage", usage),
			zap.Int("limit", w.cfg.DailyLimit))
		return &Summary{DailyUsage: usage, EstimatedCost: float64(usage) * w.cfg.CostPerCall}, nil
	}

	if maxRuns <= 0 {
		maxRuns = 1
	}
	runs := maxRuns
	if remaining < runs {
		runs = remaining
	}

	summary := &Summary{}
	for i := 0; i < runs; i++ {
		if err := ctx.Err(); err != nil {
			break
		}

		st, err := w.states.AcquireNext(ctx, prioritySource)
		if err != nil {
			return summary, eris.Wrap(err, "worker: acquire next")
		}
		if st == nil {
			log.Info("queue empty")
			break
		}

		status, paid, err := w.ProcessOne(ctx, st)
		if err != nil {
			log.Error("item processing failed",
				zap.String("hash", st.AddressHash),
				zap.Error(err))
		}

		summary.Processed++
		if paid {
			summary.PaidCalls++
		}
		switch status {
		case model.StatusEnriched:
			summary.Enriched++
		case model.StatusNoOwnerData:
			summary.NoOwnerData++
		case model.StatusOrphaned:
			summary.Orphaned++
		case model.StatusFailed:
			summary.Failed++
		}
	}

	summary.DailyUsage = usage + summary.PaidCalls
	summary.EstimatedCost = float64(summary.DailyUsage) * w.cfg.CostPerCall
	log.Info("run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("enriched", summary.Enriched),
		zap.Int("paid_calls", summary.PaidCalls),
		zap.Int("daily_usage", summary.DailyUsage),
		zap.Float64("estimated_cost", summary.EstimatedCost))
	return summary, nil
}

// ProcessOne resolves a single claimed queue entry to a terminal status. It
// reports the committed status and whether a paid lookup was made.
func (w *Worker) ProcessOne(ctx context.Context, st *model.EnrichmentState) (model.Status, bool, error) {
	log := w.log.With(zap.String("hash", st.AddressHash), zap.String("source", st.ListingSource))
	adapter := w.resolver.Resolve(st.ListingSource)

	// Free path 1: the listing may have been deleted since queueing. Never
	// spend on an address nothing references anymore. Probe errors fall
	// through to the paid path rather than wasting the claim.
	if adapter != nil {
		exists, err := adapter.ExistsByHash(ctx, st.AddressHash)
		if err != nil {
			log.Warn("existence check failed, proceeding", zap.Error(err))
		} else if !exists {
			return w.commit(ctx, st.AddressHash, state.TerminalUpdate{
				Status:        model.StatusOrphaned,
				Locked:        true,
				FailureReason: "source listing no longer exists in " + adapter.Table(),
			}, false)
		}
	}

	// Free path 2: the source table may have gained owner data after the
	// address was queued.
	if adapter != nil {
		if status, done := w.trySmartSkip(ctx, adapter, st, log); done {
			return status, false, nil
		}
	}

	if w.client == nil {
		return w.commit(ctx, st.AddressHash, state.TerminalUpdate{
			Status:        model.StatusFailed,
			FailureReason: "no skip-trace client configured",
		}, false)
	}

	// Paid path.
	lookupAddr := st.OriginalAddress
	if lookupAddr == "" {
		lookupAddr = st.NormalizedAddress
	}
	parts := address.Split(lookupAddr)

	resp, err := w.client.SkipTrace(ctx, batchdata.Address{
		Street: parts.Street,
		City:   parts.City,
		State:  parts.State,
		Zip:    parts.Zip,
	})
	if err != nil {
		// Terminal by policy: a failure is never retried, so a transient
		// provider error costs this address permanently rather than risking
		// double spend.
		return w.commit(ctx, st.AddressHash, state.TerminalUpdate{
			Status:        model.StatusFailed,
			SourceUsed:    model.SourceBatchData,
			FailureReason: err.Error(),
		}, true)
	}

	requestID := resp.Results.Meta.RequestID
	if len(resp.Results.Persons) == 0 {
		return w.commit(ctx, st.AddressHash, state.TerminalUpdate{
			Status:        model.StatusNoOwnerData,
			Locked:        true,
			SourceUsed:    model.SourceBatchData,
			RequestID:     requestID,
			FailureReason: "no persons in response",
		}, true)
	}

	person := resp.Results.Persons[0]
	name, email, phone := owner.Clean(person.OwnerName(), person.FirstEmail(), person.FirstPhone())
	mailing := strings.TrimSpace(person.MailingAddress())

	if name == "" && email == "" && phone == "" && mailing == "" {
		return w.commit(ctx, st.AddressHash, state.TerminalUpdate{
			Status:        model.StatusNoOwnerData,
			Locked:        true,
			SourceUsed:    model.SourceBatchData,
			RequestID:     requestID,
			FailureReason: "response contained only placeholder data",
		}, true)
	}

	rec := &model.OwnerRecord{
		AddressHash:    st.AddressHash,
		OwnerName:      name,
		OwnerEmail:     email,
		OwnerPhone:     phone,
		MailingAddress: mailing,
		Source:         model.SourceBatchData,
		ListingSource:  st.ListingSource,
	}
	if err := w.owners.Upsert(ctx, rec); err != nil {
		return w.commit(ctx, st.AddressHash, state.TerminalUpdate{
			Status:        model.StatusFailed,
			SourceUsed:    model.SourceBatchData,
			RequestID:     requestID,
			FailureReason: "owner save failed: " + err.Error(),
		}, true)
	}

	status, paid, err := w.commit(ctx, st.AddressHash, state.TerminalUpdate{
		Status:     model.StatusEnriched,
		Locked:     true,
		SourceUsed: model.SourceBatchData,
		RequestID:  requestID,
	}, true)
	if err != nil {
		return status, paid, err
	}

	// Best effort: push fresh data back into the source table right away so
	// the scrapers see it without waiting for the next sync-back run.
	if adapter != nil {
		if err := adapter.UpdateOwner(ctx, st.AddressHash, rec); err != nil {
			log.Warn("immediate sync-back failed", zap.Error(err))
		}
	}

	log.Info("enriched from provider", zap.String("request_id", requestID))
	return model.StatusEnriched, true, nil
}

// trySmartSkip copies owner data straight from the source table when it is
// already present and valid. Returns done=false when the paid path is still
// needed; probe errors never fail the item.
func (w *Worker) trySmartSkip(ctx context.Context, adapter source.Adapter, st *model.EnrichmentState, log *zap.Logger) (model.Status, bool) {
	name, err := adapter.OwnerNameByHash(ctx, st.AddressHash)
	if err != nil {
		log.Warn("smart-skip probe failed, proceeding", zap.Error(err))
		return "", false
	}
	if !owner.IsValidOwnerName(name) {
		return "", false
	}

	rec, err := adapter.OwnerByHash(ctx, st.AddressHash)
	if err != nil || rec == nil {
		if err != nil {
			log.Warn("smart-skip read failed, proceeding", zap.Error(err))
		}
		return "", false
	}

	rec.OwnerName, rec.OwnerEmail, rec.OwnerPhone = owner.Clean(rec.OwnerName, rec.OwnerEmail, rec.OwnerPhone)
	if rec.OwnerName == "" {
		return "", false
	}

	if err := w.owners.Upsert(ctx, rec); err != nil {
		log.Warn("smart-skip owner save failed, proceeding", zap.Error(err))
		return "", false
	}

	status, _, err := w.commit(ctx, st.AddressHash, state.TerminalUpdate{
		Status:     model.StatusEnriched,
		Locked:     true,
		SourceUsed: model.SourceScraped,
	}, false)
	if err != nil {
		log.Error("smart-skip commit failed", zap.Error(err))
		return status, true
	}
	log.Info("enriched via smart-skip, no API cost")
	return model.StatusEnriched, true
}

// commit writes a terminal transition and normalizes the return triple.
func (w *Worker) commit(ctx context.Context, hash string, upd state.TerminalUpdate, paid bool) (model.Status, bool, error) {
	if err := w.states.MarkTerminal(ctx, hash, upd); err != nil {
		return upd.Status, paid, eris.Wrapf(err, "worker: commit %s", upd.Status)
	}
	return upd.Status, paid, nil
}

// DryRun reports what a real run would do. No writes, no network.
func (w *Worker) DryRun(ctx context.Context) (*DryRunReport, error) {
	eligible, err := w.states.CountEligible(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "worker: count eligible")
	}

	usage, err := w.states.CountDailyUsage(ctx, w.now())
	if err != nil {
		return nil, eris.Wrap(err, "worker: count daily usage")
	}

	remaining := w.cfg.DailyLimit - usage
	if remaining < 0 {
		remaining = 0
	}
	wouldProcess := eligible
	if remaining < wouldProcess {
		wouldProcess = remaining
	}

	sample, err := w.states.SampleEligible(ctx, 10)
	if err != nil {
		return nil, eris.Wrap(err, "worker: sample eligible")
	}

	return &DryRunReport{
		Eligible:      eligible,
		WouldProcess:  wouldProcess,
		EstimatedCost: float64(eligible) * w.cfg.CostPerCall,
		Sample:        sample,
	}, nil
}
