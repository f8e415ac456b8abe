// Package state persists the per-address enrichment state machine and
// implements the atomic work-distribution primitive for the worker fleet.
//
// The owner_enrichment_state table is the single source of truth for "is this
// address already being handled": workers must never infer lock state from a
// listing table. A terminal status is immutable; every write path here guards
// against overwriting one in SQL rather than trusting application logic.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Store provides access to the enrichment state machine.
type Store struct {
	pool db.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS owner_enrichment_state (
	address_hash         TEXT PRIMARY KEY,
	normalized_address   TEXT NOT NULL,
	original_address     TEXT,
	status               TEXT NOT NULL DEFAULT 'never_checked',
	locked               BOOLEAN NOT NULL DEFAULT false,
	locked_at            TIMESTAMPTZ,
	listing_source       TEXT,
	source_used          TEXT,
	batchdata_request_id TEXT,
	failure_reason       TEXT,
	missing_fields       JSONB,
	checked_at           TIMESTAMPTZ,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_enrichment_state_status_locked
	ON owner_enrichment_state(status, locked);
CREATE INDEX IF NOT EXISTS idx_enrichment_state_source_used_checked
	ON owner_enrichment_state(source_used, checked_at);
CREATE INDEX IF NOT EXISTS idx_enrichment_state_listing_source
	ON owner_enrichment_state(listing_source);
`

// terminalList is the SQL literal list of terminal statuses.
const terminalList = `('enriched', 'no_owner_data', 'failed', 'orphaned')`

// ingestGuardList additionally protects legacy checking rows: a scrape
// arriving while an older worker still holds the row must not steal its claim.
const ingestGuardList = `('enriched', 'no_owner_data', 'failed', 'orphaned', 'checking')`

const stateColumns = `address_hash, normalized_address, original_address, status, locked, locked_at,
	listing_source, source_used, batchdata_request_id, failure_reason, missing_fields, checked_at, updated_at`

// Migrate creates the state table and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "state: migrate")
}

// Get returns the state row for a hash, or nil when none exists.
func (s *Store) Get(ctx context.Context, hash string) (*model.EnrichmentState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM owner_enrichment_state WHERE address_hash = $1`,
		hash,
	)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "state: get %s", hash)
	}
	return st, nil
}

// Upsert inserts or refreshes a state row. A conflicting row is only updated
// while still in never_checked; terminal and in-flight rows keep their values.
func (s *Store) Upsert(ctx context.Context, st *model.EnrichmentState) error {
	missingJSON, err := marshalMissing(st.MissingFields)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO owner_enrichment_state
			(address_hash, normalized_address, original_address, status, locked, listing_source, source_used, missing_fields, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			normalized_address = EXCLUDED.normalized_address,
			original_address = COALESCE(EXCLUDED.original_address, owner_enrichment_state.original_address),
			listing_source = COALESCE(NULLIF(EXCLUDED.listing_source, ''), owner_enrichment_state.listing_source),
			missing_fields = EXCLUDED.missing_fields,
			updated_at = now()
		WHERE owner_enrichment_state.status = 'never_checked'`,
		st.AddressHash, st.NormalizedAddress, nullIfEmpty(st.OriginalAddress),
		string(st.Status), st.Locked, nullIfEmpty(st.ListingSource),
		nullIfEmpty(st.SourceUsed), missingJSON,
	)
	return eris.Wrapf(err, "state: upsert %s", st.AddressHash)
}

// SetTerminal moves a row directly to a terminal status at ingest time (data
// already complete from the scrape). Unlike MarkTerminal it also creates the
// row when absent.
func (s *Store) SetTerminal(ctx context.Context, st *model.EnrichmentState) error {
	if !st.Status.Terminal() {
		return eris.Errorf("state: set terminal with non-terminal status %q", st.Status)
	}
	missingJSON, err := marshalMissing(st.MissingFields)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO owner_enrichment_state
			(address_hash, normalized_address, original_address, status, locked, listing_source, source_used, missing_fields, checked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (address_hash) DO UPDATE SET
			status = EXCLUDED.status,
			locked = EXCLUDED.locked,
			source_used = EXCLUDED.source_used,
			listing_source = COALESCE(NULLIF(EXCLUDED.listing_source, ''), owner_enrichment_state.listing_source),
			checked_at = now(),
			updated_at = now()
		WHERE owner_enrichment_state.status NOT IN `+ingestGuardList,
		st.AddressHash, st.NormalizedAddress, nullIfEmpty(st.OriginalAddress),
		string(st.Status), st.Locked, nullIfEmpty(st.ListingSource),
		nullIfEmpty(st.SourceUsed), missingJSON,
	)
	return eris.Wrapf(err, "state: set terminal %s", st.AddressHash)
}

// TerminalUpdate carries the fields written with a terminal transition.
type TerminalUpdate struct {
	Status        model.Status
	Locked        bool
	SourceUsed    string
	RequestID     string
	FailureReason string
}

// maxReasonLen bounds stored failure reasons.
const maxReasonLen = 500

// MarkTerminal commits a terminal status for an existing row. Rows already in
// a terminal status are left untouched; repeating the call is safe.
func (s *Store) MarkTerminal(ctx context.Context, hash string, upd TerminalUpdate) error {
	if !upd.Status.Terminal() {
		return eris.Errorf("state: mark terminal with non-terminal status %q", upd.Status)
	}
	reason := upd.FailureReason
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE owner_enrichment_state SET
			status = $2,
			locked = $3,
			source_used = $4,
			batchdata_request_id = NULLIF($5, ''),
			failure_reason = NULLIF($6, ''),
			checked_at = now(),
			updated_at = now()
		WHERE address_hash = $1 AND status NOT IN `+terminalList,
		hash, string(upd.Status), upd.Locked, nullIfEmpty(upd.SourceUsed),
		upd.RequestID, reason,
	)
	return eris.Wrapf(err, "state: mark %s %s", upd.Status, hash)
}

// AcquireNext atomically claims one eligible row for the calling worker: the
// lock is taken in the same statement that selects the row, so N concurrent
// callers receive N distinct rows (or nil). A read-then-write sequence here
// would allow two workers to pay for the same address.
func (s *Store) AcquireNext(ctx context.Context, prioritySource string) (*model.EnrichmentState, error) {
	filter := ""
	args := []any{}
	if prioritySource != "" {
		filter = " AND listing_source = $1"
		args = append(args, prioritySource)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE owner_enrichment_state SET
			locked = true,
			locked_at = now(),
			updated_at = now()
		WHERE address_hash = (
			SELECT address_hash FROM owner_enrichment_state
			WHERE status = 'never_checked' AND locked = false%s
			ORDER BY updated_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+stateColumns, filter),
		args...,
	)

	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "state: acquire next")
	}
	return st, nil
}

// ClearStaleLocks unlocks never_checked rows whose lock is older than the
// cutoff, recovering work abandoned by crashed workers. Terminal rows are
// never touched. Returns the number of locks released.
func (s *Store) ClearStaleLocks(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		UPDATE owner_enrichment_state SET
			locked = false,
			locked_at = NULL,
			updated_at = now()
		WHERE locked = true AND status = 'never_checked' AND locked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "state: clear stale locks")
	}
	return tag.RowsAffected(), nil
}

// CountDailyUsage counts paid lookups committed since the UTC start of the
// given day. This is the sole input to budget governance.
func (s *Store) CountDailyUsage(ctx context.Context, now time.Time) (int, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM owner_enrichment_state
		WHERE source_used = $1 AND checked_at >= $2`,
		model.SourceBatchData, dayStart,
	).Scan(&count)
	return count, eris.Wrap(err, "state: count daily usage")
}

// CountEligible counts unlocked never_checked rows, optionally restricted to
// one listing source.
func (s *Store) CountEligible(ctx context.Context, prioritySource string) (int, error) {
	query := `SELECT COUNT(*) FROM owner_enrichment_state WHERE status = 'never_checked' AND locked = false`
	args := []any{}
	if prioritySource != "" {
		query += ` AND listing_source = $1`
		args = append(args, prioritySource)
	}
	var count int
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, eris.Wrap(err, "state: count eligible")
}

// SampleEligible returns up to n eligible rows for dry-run display.
func (s *Store) SampleEligible(ctx context.Context, n int) ([]model.EnrichmentState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address_hash, normalized_address, listing_source
		FROM owner_enrichment_state
		WHERE status = 'never_checked' AND locked = false
		ORDER BY updated_at
		LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "state: sample eligible")
	}
	defer rows.Close()

	var out []model.EnrichmentState
	for rows.Next() {
		var st model.EnrichmentState
		var source *string
		if err := rows.Scan(&st.AddressHash, &st.NormalizedAddress, &source); err != nil {
			return nil, eris.Wrap(err, "state: scan sample")
		}
		if source != nil {
			st.ListingSource = *source
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "state: sample iterate")
}

// StatusCounts returns row counts grouped by status.
func (s *Store) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM owner_enrichment_state GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "state: status counts")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "state: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "state: status counts iterate")
}

// SyncTarget identifies a terminal row to propagate back to its source table.
type SyncTarget struct {
	AddressHash   string
	ListingSource string
	Status        model.Status
}

// ListSyncTargets returns enriched and no_owner_data rows that carry a
// listing source.
func (s *Store) ListSyncTargets(ctx context.Context) ([]SyncTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address_hash, listing_source, status
		FROM owner_enrichment_state
		WHERE status IN ('enriched', 'no_owner_data')
		  AND listing_source IS NOT NULL AND listing_source <> ''`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "state: list sync targets")
	}
	defer rows.Close()

	var out []SyncTarget
	for rows.Next() {
		var t SyncTarget
		var status string
		if err := rows.Scan(&t.AddressHash, &t.ListingSource, &status); err != nil {
			return nil, eris.Wrap(err, "state: scan sync target")
		}
		t.Status = model.Status(status)
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "state: sync targets iterate")
}

// Page returns a stable page of rows ordered by hash, for the repair pass.
func (s *Store) Page(ctx context.Context, offset, limit int) ([]model.EnrichmentState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM owner_enrichment_state ORDER BY address_hash OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "state: page")
	}
	defer rows.Close()

	var out []model.EnrichmentState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, eris.Wrap(err, "state: scan page row")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "state: page iterate")
}

// Rekey changes a row's address hash after a normalization-rule change.
// Fails with a unique violation when the target hash already exists; the
// repair pass resolves that by merging.
func (s *Store) Rekey(ctx context.Context, oldHash, newHash, normalized string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE owner_enrichment_state
		SET address_hash = $2, normalized_address = $3, updated_at = now()
		WHERE address_hash = $1`,
		oldHash, newHash, normalized,
	)
	return eris.Wrapf(err, "state: rekey %s", oldHash)
}

// SetStatus overwrites a row's status unconditionally. Repair-pass use only:
// merging two rows after a hash migration must be able to promote the
// surviving row past the terminal guard.
func (s *Store) SetStatus(ctx context.Context, hash string, status model.Status) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE owner_enrichment_state SET status = $2, updated_at = now() WHERE address_hash = $1`,
		hash, string(status),
	)
	return eris.Wrapf(err, "state: set status %s", hash)
}

// Delete removes a row. Used only by the repair pass when merging collided
// hashes; normal operation never deletes state.
func (s *Store) Delete(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM owner_enrichment_state WHERE address_hash = $1`, hash,
	)
	return eris.Wrapf(err, "state: delete %s", hash)
}

// FillOriginalAddress records the raw address on rows that predate its
// capture, so future hash repairs can re-derive from the original text.
func (s *Store) FillOriginalAddress(ctx context.Context, hash, raw string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE owner_enrichment_state
		SET original_address = $2
		WHERE address_hash = $1 AND original_address IS NULL`,
		hash, raw,
	)
	return eris.Wrapf(err, "state: fill original address %s", hash)
}

// UpdateListingSource tags a row with its source when no tag exists yet.
func (s *Store) UpdateListingSource(ctx context.Context, hash, source string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE owner_enrichment_state
		SET listing_source = $2, updated_at = now()
		WHERE address_hash = $1 AND (listing_source IS NULL OR listing_source = '')`,
		hash, source,
	)
	return eris.Wrapf(err, "state: update listing source %s", hash)
}

func scanState(row pgx.Row) (*model.EnrichmentState, error) {
	var st model.EnrichmentState
	var status string
	var original, listingSource, sourceUsed, requestID, failureReason *string
	var missingJSON []byte

	err := row.Scan(
		&st.AddressHash, &st.NormalizedAddress, &original, &status, &st.Locked, &st.LockedAt,
		&listingSource, &sourceUsed, &requestID, &failureReason, &missingJSON, &st.CheckedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Status = model.Status(status)
	if original != nil {
		st.OriginalAddress = *original
	}
	if listingSource != nil {
		st.ListingSource = *listingSource
	}
	if sourceUsed != nil {
		st.SourceUsed = *sourceUsed
	}
	if requestID != nil {
		st.RequestID = *requestID
	}
	if failureReason != nil {
		st.FailureReason = *failureReason
	}
	if len(missingJSON) > 0 {
		if err := json.Unmarshal(missingJSON, &st.MissingFields); err != nil {
			return nil, eris.Wrap(err, "state: unmarshal missing fields")
		}
	}
	return &st, nil
}

func marshalMissing(m map[string]bool) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "state: marshal missing fields")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
