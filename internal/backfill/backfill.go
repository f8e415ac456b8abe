// Package backfill walks every listing table and queues addresses that still
// need enrichment. The job is safe to re-run: it upserts by address hash and
// never touches rows that already progressed past never_checked.
package backfill

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/address"
	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/source"
)

// StateReader is the slice of the state store the queuer needs.
type StateReader interface {
	Get(ctx context.Context, hash string) (*model.EnrichmentState, error)
	FillOriginalAddress(ctx context.Context, hash, raw string) error
}

// OwnerReader looks up existing owner records.
type OwnerReader interface {
	Get(ctx context.Context, hash string) (*model.OwnerRecord, error)
}

// Report summarizes one backfill run.
type Report struct {
	Queued   int
	Repaired int
	PerTable map[string]int
}

// Queuer scans listing tables and enqueues missing work.
type Queuer struct {
	pool        db.Pool
	adapters    []source.Adapter
	states      StateReader
	owners      OwnerReader
	pageSize    int
	concurrency int
	log         *zap.Logger

	// upsert is swapped out in tests.
	upsert func(ctx context.Context, pool db.Pool, cfg db.UpsertConfig, rows [][]any) (int64, error)
}

// NewQueuer creates a Queuer over the given adapters.
func NewQueuer(pool db.Pool, adapters []source.Adapter, states StateReader, owners OwnerReader, pageSize, concurrency int) *Queuer {
	if pageSize <= 0 {
		pageSize = 1000
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Queuer{
		pool:        pool,
		adapters:    adapters,
		states:      states,
		owners:      owners,
		pageSize:    pageSize,
		concurrency: concurrency,
		log:         zap.L().Named("backfill"),
		upsert:      db.BulkUpsert,
	}
}

// Run processes all listing tables, a bounded number concurrently.
func (q *Queuer) Run(ctx context.Context) (*Report, error) {
	report := &Report{PerTable: make(map[string]int)}
	var mu sync.Mutex
	// Hashes queued in this run, so two tables sharing an address do not
	// produce duplicate batch rows.
	seen := make(map[string]bool)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)

	for _, adapter := range q.adapters {
		g.Go(func() error {
			queued, repaired, err := q.processTable(ctx, adapter, &mu, seen)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Queued += queued
			report.Repaired += repaired
			report.PerTable[adapter.Table()] = queued
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	q.log.Info("backfill complete",
		zap.Int("queued", report.Queued),
		zap.Int("hashes_repaired", report.Repaired))
	return report, nil
}

func (q *Queuer) processTable(ctx context.Context, adapter source.Adapter, mu *sync.Mutex, seen map[string]bool) (queued, repaired int, err error) {
	log := q.log.With(zap.String("table", adapter.Table()))

	for page := 0; ; page++ {
		rows, err := adapter.ScanPage(ctx, page, q.pageSize)
		if err != nil {
			return queued, repaired, eris.Wrapf(err, "backfill: scan %s page %d", adapter.Table(), page)
		}
		if len(rows) == 0 {
			break
		}

		var batch [][]any
		for _, row := range rows {
			raw := strings.TrimSpace(row.RawAddress)
			if raw == "" {
				continue
			}
			normalized, hash := address.HashAddress(raw)

			// Keep the table's own stored hash consistent so joins against
			// the state table keep working.
			if row.StoredHash != hash {
				if err := adapter.UpdateHash(ctx, row.ID, hash); err != nil {
					log.Warn("hash repair failed", zap.Int64("id", row.ID), zap.Error(err))
				} else {
					repaired++
				}
			}

			include, missing, err := q.needsQueueing(ctx, hash, raw)
			if err != nil {
				return queued, repaired, err
			}
			if !include {
				continue
			}

			mu.Lock()
			dup := seen[hash]
			if !dup {
				seen[hash] = true
			}
			mu.Unlock()
			if dup {
				continue
			}

			missingJSON, err := json.Marshal(missing)
			if err != nil {
				return queued, repaired, eris.Wrap(err, "backfill: marshal missing fields")
			}
			batch = append(batch, []any{
				hash, normalized, raw, string(model.StatusNeverChecked), false, adapter.Name(), missingJSON,
			})
		}

		if len(batch) > 0 {
			n, err := q.upsert(ctx, q.pool, db.UpsertConfig{
				Table: "owner_enrichment_state",
				Columns: []string{
					"address_hash", "normalized_address", "original_address",
					"status", "locked", "listing_source", "missing_fields",
				},
				ConflictKeys: []string{"address_hash"},
				// Rows that progressed past never_checked keep their values.
				ConflictGuard: "owner_enrichment_state.status = 'never_checked'",
			}, batch)
			if err != nil {
				return queued, repaired, eris.Wrapf(err, "backfill: enqueue %s", adapter.Table())
			}
			queued += int(n)
			log.Info("queued page", zap.Int("page", page), zap.Int64("rows", n))
		}

		if len(rows) < q.pageSize {
			break
		}
	}
	return queued, repaired, nil
}

// needsQueueing decides whether a hash still needs paid enrichment. Known
// state rows are skipped (with a best-effort original-address backfill), as
// are addresses whose owner record is already complete.
func (q *Queuer) needsQueueing(ctx context.Context, hash, raw string) (bool, map[string]bool, error) {
	st, err := q.states.Get(ctx, hash)
	if err != nil {
		return false, nil, eris.Wrap(err, "backfill: state lookup")
	}
	if st != nil {
		if st.OriginalAddress == "" {
			if err := q.states.FillOriginalAddress(ctx, hash, raw); err != nil {
				q.log.Warn("original address backfill failed", zap.String("hash", hash), zap.Error(err))
			}
		}
		return false, nil, nil
	}

	rec, err := q.owners.Get(ctx, hash)
	if err != nil {
		return false, nil, eris.Wrap(err, "backfill: owner lookup")
	}
	if rec != nil {
		complete, missing := owner.IsComplete(rec.OwnerName, rec.OwnerEmail, rec.OwnerPhone, rec.MailingAddress)
		if complete {
			return false, nil, nil
		}
		return true, missing, nil
	}

	_, missing := owner.IsComplete("", "", "", "")
	return true, missing, nil
}
