package owner

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Store persists canonical owner records keyed by address hash.
type Store struct {
	pool db.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS property_owner_records (
	address_hash    TEXT PRIMARY KEY,
	owner_name      TEXT,
	owner_email     TEXT,
	owner_phone     TEXT,
	mailing_address TEXT,
	source          TEXT NOT NULL,
	listing_source  TEXT,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_owner_records_listing_source
	ON property_owner_records(listing_source);
`

// Migrate creates the owner records table.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "owner: migrate")
}

// Get returns the owner record for a hash, or nil when none exists.
func (s *Store) Get(ctx context.Context, hash string) (*model.OwnerRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address_hash, owner_name, owner_email, owner_phone, mailing_address, source, listing_source, updated_at
		FROM property_owner_records WHERE address_hash = $1`,
		hash,
	)

	var rec model.OwnerRecord
	var name, email, phone, mailing, listingSource *string
	err := row.Scan(&rec.AddressHash, &name, &email, &phone, &mailing, &rec.Source, &listingSource, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "owner: get %s", hash)
	}

	rec.OwnerName = deref(name)
	rec.OwnerEmail = deref(email)
	rec.OwnerPhone = deref(phone)
	rec.MailingAddress = deref(mailing)
	rec.ListingSource = deref(listingSource)
	return &rec, nil
}

// Upsert writes an owner record, filling blanks on conflict without blanking
// fields an earlier write already captured.
func (s *Store) Upsert(ctx context.Context, rec *model.OwnerRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO property_owner_records
			(address_hash, owner_name, owner_email, owner_phone, mailing_address, source, listing_source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			owner_name = COALESCE(NULLIF(EXCLUDED.owner_name, ''), property_owner_records.owner_name),
			owner_email = COALESCE(NULLIF(EXCLUDED.owner_email, ''), property_owner_records.owner_email),
			owner_phone = COALESCE(NULLIF(EXCLUDED.owner_phone, ''), property_owner_records.owner_phone),
			mailing_address = COALESCE(NULLIF(EXCLUDED.mailing_address, ''), property_owner_records.mailing_address),
			source = EXCLUDED.source,
			listing_source = COALESCE(NULLIF(EXCLUDED.listing_source, ''), property_owner_records.listing_source),
			updated_at = now()`,
		rec.AddressHash, rec.OwnerName, rec.OwnerEmail, rec.OwnerPhone,
		rec.MailingAddress, rec.Source, rec.ListingSource,
	)
	return eris.Wrapf(err, "owner: upsert %s", rec.AddressHash)
}

// Rekey moves a record to a new address hash after a normalization-rule
// change. A unique violation means the target hash already has a record.
func (s *Store) Rekey(ctx context.Context, oldHash, newHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE property_owner_records SET address_hash = $2, updated_at = now() WHERE address_hash = $1`,
		oldHash, newHash,
	)
	return eris.Wrapf(err, "owner: rekey %s", oldHash)
}

// Delete removes a record. Used by the repair pass when merging collided
// hashes.
func (s *Store) Delete(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM property_owner_records WHERE address_hash = $1`, hash,
	)
	return eris.Wrapf(err, "owner: delete %s", hash)
}

// Count returns the total number of owner records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM property_owner_records`).Scan(&n)
	return n, eris.Wrap(err, "owner: count")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
