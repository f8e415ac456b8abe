// Package repair migrates stored address hashes after a normalization-rule
// change. Hashes act as foreign keys across the state table, the owner
// records, and all seven listing tables; when the rule changes they must all
// be re-derived from the raw address, with collisions merged rather than
// failed. The pass is re-runnable: once hashes match, it changes nothing.
package repair

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/address"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
)

// StateStore is the slice of the state store the repair pass needs.
type StateStore interface {
	Page(ctx context.Context, offset, limit int) ([]model.EnrichmentState, error)
	Get(ctx context.Context, hash string) (*model.EnrichmentState, error)
	Rekey(ctx context.Context, oldHash, newHash, normalized string) error
	SetStatus(ctx context.Context, hash string, status model.Status) error
	Delete(ctx context.Context, hash string) error
}

// OwnerStore moves owner records alongside their state rows.
type OwnerStore interface {
	Get(ctx context.Context, hash string) (*model.OwnerRecord, error)
	Upsert(ctx context.Context, rec *model.OwnerRecord) error
	Rekey(ctx context.Context, oldHash, newHash string) error
	Delete(ctx context.Context, hash string) error
}

// Report summarizes one repair run.
type Report struct {
	StatesRekeyed  int
	StatesMerged   int
	OwnersMoved    int
	SourceRepaired int
	Skipped        int
}

// Runner executes the hash migration.
type Runner struct {
	states   StateStore
	owners   OwnerStore
	adapters []source.Adapter
	pageSize int
	// execute false means report intended changes without writing.
	execute bool
	log     *zap.Logger
}

// New creates a Runner. With execute false the run is a dry run.
func New(states StateStore, owners OwnerStore, adapters []source.Adapter, pageSize int, execute bool) *Runner {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Runner{
		states:   states,
		owners:   owners,
		adapters: adapters,
		pageSize: pageSize,
		execute:  execute,
		log:      zap.L().Named("repair"),
	}
}

// Run migrates state rows, owner records, and source table hashes.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	if err := r.repairStates(ctx, report); err != nil {
		return report, err
	}
	if err := r.repairSourceTables(ctx, report); err != nil {
		return report, err
	}
	r.log.Info("repair complete",
		zap.Bool("executed", r.execute),
		zap.Int("states_rekeyed", report.StatesRekeyed),
		zap.Int("states_merged", report.StatesMerged),
		zap.Int("owners_moved", report.OwnersMoved),
		zap.Int("source_rows_repaired", report.SourceRepaired),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// pendingRekey is one state row whose stored hash no longer matches its
// recomputed one.
type pendingRekey struct {
	row        model.EnrichmentState
	newHash    string
	normalized string
}

func (r *Runner) repairStates(ctx context.Context, report *Report) error {
	// Scan first, write after. Pagination orders by address_hash, so a rekey
	// issued mid-scan would shift rows under the iterator and skip some of
	// them in this pass.
	var pending []pendingRekey
	for offset := 0; ; offset += r.pageSize {
		rows, err := r.states.Page(ctx, offset, r.pageSize)
		if err != nil {
			return eris.Wrap(err, "repair: page states")
		}
		if len(rows) == 0 {
			break
		}

		for i := range rows {
			row := rows[i]
			// Prefer the raw address; rows that predate its capture fall
			// back to the stored normalized form, which re-normalizes to
			// itself under the old rule but may still shift under a new one.
			src := row.OriginalAddress
			if src == "" {
				src = row.NormalizedAddress
			}
			if strings.TrimSpace(src) == "" {
				report.Skipped++
				continue
			}

			normalized, newHash := address.HashAddress(src)
			if newHash == row.AddressHash {
				continue
			}

			if !r.execute {
				r.log.Info("would rekey state row",
					zap.String("old", row.AddressHash),
					zap.String("new", newHash))
				report.StatesRekeyed++
				continue
			}

			pending = append(pending, pendingRekey{row: row, newHash: newHash, normalized: normalized})
		}

		if len(rows) < r.pageSize {
			break
		}
	}

	for i := range pending {
		p := &pending[i]
		if err := r.migrateState(ctx, &p.row, p.newHash, p.normalized, report); err != nil {
			return err
		}
	}
	return nil
}

// migrateState moves one state row to its recomputed hash, merging into an
// existing row when the target hash is already taken.
func (r *Runner) migrateState(ctx context.Context, row *model.EnrichmentState, newHash, normalized string, report *Report) error {
	target, err := r.states.Get(ctx, newHash)
	if err != nil {
		return eris.Wrap(err, "repair: target lookup")
	}

	if target == nil {
		if err := r.states.Rekey(ctx, row.AddressHash, newHash, normalized); err != nil {
			return eris.Wrap(err, "repair: rekey state")
		}
		report.StatesRekeyed++
	} else {
		// Collision: the more advanced status wins, the duplicate row goes.
		if row.Status.MergePriority() > target.Status.MergePriority() {
			if err := r.states.SetStatus(ctx, newHash, row.Status); err != nil {
				return eris.Wrap(err, "repair: promote merged status")
			}
		}
		if err := r.states.Delete(ctx, row.AddressHash); err != nil {
			return eris.Wrap(err, "repair: delete duplicate state")
		}
		report.StatesMerged++
		r.log.Info("merged colliding state rows",
			zap.String("old", row.AddressHash),
			zap.String("new", newHash),
			zap.String("kept_status", string(maxStatus(row.Status, target.Status))))
	}

	moved, err := r.moveOwner(ctx, row.AddressHash, newHash)
	if err != nil {
		return err
	}
	if moved {
		report.OwnersMoved++
	}
	return nil
}

// moveOwner carries the owner record from the old hash to the new one. When
// both hashes have records the surviving record absorbs the mover's fields
// (blanks only) and the old record is deleted.
func (r *Runner) moveOwner(ctx context.Context, oldHash, newHash string) (bool, error) {
	rec, err := r.owners.Get(ctx, oldHash)
	if err != nil {
		return false, eris.Wrap(err, "repair: owner lookup")
	}
	if rec == nil {
		return false, nil
	}

	existing, err := r.owners.Get(ctx, newHash)
	if err != nil {
		return false, eris.Wrap(err, "repair: owner target lookup")
	}

	if existing == nil {
		if err := r.owners.Rekey(ctx, oldHash, newHash); err != nil {
			return false, eris.Wrap(err, "repair: rekey owner")
		}
		return true, nil
	}

	rec.AddressHash = newHash
	if err := r.owners.Upsert(ctx, rec); err != nil {
		return false, eris.Wrap(err, "repair: merge owner")
	}
	if err := r.owners.Delete(ctx, oldHash); err != nil {
		return false, eris.Wrap(err, "repair: delete duplicate owner")
	}
	return true, nil
}

func (r *Runner) repairSourceTables(ctx context.Context, report *Report) error {
	for _, adapter := range r.adapters {
		for page := 0; ; page++ {
			rows, err := adapter.ScanPage(ctx, page, r.pageSize)
			if err != nil {
				return eris.Wrapf(err, "repair: scan %s", adapter.Table())
			}
			if len(rows) == 0 {
				break
			}

			for _, row := range rows {
				raw := strings.TrimSpace(row.RawAddress)
				if raw == "" {
					continue
				}
				_, newHash := address.HashAddress(raw)
				if newHash == row.StoredHash {
					continue
				}
				if !r.execute {
					report.SourceRepaired++
					continue
				}
				if err := adapter.UpdateHash(ctx, row.ID, newHash); err != nil {
					r.log.Warn("source hash update failed",
						zap.String("table", adapter.Table()),
						zap.Int64("id", row.ID),
						zap.Error(err))
					continue
				}
				report.SourceRepaired++
			}

			if len(rows) < r.pageSize {
				break
			}
		}
	}
	return nil
}

func maxStatus(a, b model.Status) model.Status {
	if a.MergePriority() > b.MergePriority() {
		return a
	}
	return b
}
