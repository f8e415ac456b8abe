package owner

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM property_owner_records WHERE address_hash = \$1`).
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{
			"address_hash", "owner_name", "owner_email", "owner_phone",
			"mailing_address", "source", "listing_source", "updated_at",
		}).AddRow(
			"abc123", strPtr("Jane Smith"), strPtr("jane@example.com"), (*string)(nil),
			strPtr("1 Oak Ln, Chicago, IL 60601"), "batchdata", strPtr("listings"), now,
		))

	rec, err := store.Get(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Jane Smith", rec.OwnerName)
	assert.Equal(t, "jane@example.com", rec.OwnerEmail)
	assert.Empty(t, rec.OwnerPhone)
	assert.Equal(t, "batchdata", rec.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM property_owner_records`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"address_hash", "owner_name", "owner_email", "owner_phone",
			"mailing_address", "source", "listing_source", "updated_at",
		}))

	rec, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertFillsBlanksOnly(t *testing.T) {
	store, mock := newMockStore(t)

	// Conflict branch coalesces empty incoming fields against existing values.
	mock.ExpectExec(`INSERT INTO property_owner_records[\s\S]+COALESCE\(NULLIF\(EXCLUDED\.owner_name, ''\), property_owner_records\.owner_name\)`).
		WithArgs("abc123", "Jane Smith", "", "312-555-0100", "", "scraped", "listings").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Upsert(context.Background(), &model.OwnerRecord{
		AddressHash:   "abc123",
		OwnerName:     "Jane Smith",
		OwnerPhone:    "312-555-0100",
		Source:        model.SourceScraped,
		ListingSource: "listings",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRekey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE property_owner_records SET address_hash = \$2`).
		WithArgs("old", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Rekey(context.Background(), "old", "new"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
