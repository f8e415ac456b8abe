package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/address"
	"github.com/sells-group/enrich-cli/internal/model"
)

type fakeStateStore struct {
	states        map[string]*model.EnrichmentState
	upserts       []*model.EnrichmentState
	terminals     []*model.EnrichmentState
	sourceUpdates map[string]string
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		states:        make(map[string]*model.EnrichmentState),
		sourceUpdates: make(map[string]string),
	}
}

func (f *fakeStateStore) Get(_ context.Context, hash string) (*model.EnrichmentState, error) {
	return f.states[hash], nil
}

func (f *fakeStateStore) Upsert(_ context.Context, st *model.EnrichmentState) error {
	f.upserts = append(f.upserts, st)
	if existing, ok := f.states[st.AddressHash]; !ok || existing.Status == model.StatusNeverChecked {
		f.states[st.AddressHash] = st
	}
	return nil
}

func (f *fakeStateStore) SetTerminal(_ context.Context, st *model.EnrichmentState) error {
	f.terminals = append(f.terminals, st)
	f.states[st.AddressHash] = st
	return nil
}

func (f *fakeStateStore) UpdateListingSource(_ context.Context, hash, source string) error {
	f.sourceUpdates[hash] = source
	return nil
}

type fakeOwnerStore struct {
	upserts []*model.OwnerRecord
}

func (f *fakeOwnerStore) Upsert(_ context.Context, rec *model.OwnerRecord) error {
	f.upserts = append(f.upserts, rec)
	return nil
}

func TestProcessListingEmptyAddress(t *testing.T) {
	states := newFakeStateStore()
	owners := &fakeOwnerStore{}
	m := NewManager(states, owners)

	hash, err := m.ProcessListing(context.Background(), model.Listing{Address: "  "}, "Trulia")
	require.NoError(t, err)
	assert.Empty(t, hash)
	assert.Empty(t, states.upserts)
	assert.Empty(t, owners.upserts)
}

func TestProcessListingTerminalUntouched(t *testing.T) {
	states := newFakeStateStore()
	owners := &fakeOwnerStore{}
	m := NewManager(states, owners)

	raw := "123 Main St, Chicago, IL 60601"
	_, hash := address.HashAddress(raw)
	states.states[hash] = &model.EnrichmentState{
		AddressHash:   hash,
		Status:        model.StatusEnriched,
		ListingSource: "Trulia",
	}

	got, err := m.ProcessListing(context.Background(), model.Listing{
		Address:   raw,
		OwnerName: "Jane Smith",
	}, "Redfin")
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	// No queue entry, no owner write, no source backfill (already set).
	assert.Empty(t, states.upserts)
	assert.Empty(t, states.terminals)
	assert.Empty(t, owners.upserts)
	assert.Empty(t, states.sourceUpdates)
}

func TestProcessListingTerminalBackfillsSource(t *testing.T) {
	states := newFakeStateStore()
	m := NewManager(states, &fakeOwnerStore{})

	raw := "123 Main St, Chicago, IL 60601"
	_, hash := address.HashAddress(raw)
	states.states[hash] = &model.EnrichmentState{AddressHash: hash, Status: model.StatusNoOwnerData}

	_, err := m.ProcessListing(context.Background(), model.Listing{Address: raw}, "Hotpads")
	require.NoError(t, err)
	assert.Equal(t, "Hotpads", states.sourceUpdates[hash])
}

func TestProcessListingCompleteDataTerminalEnriched(t *testing.T) {
	states := newFakeStateStore()
	owners := &fakeOwnerStore{}
	m := NewManager(states, owners)

	hash, err := m.ProcessListing(context.Background(), model.Listing{
		Address:        "123 Main St, Chicago, IL 60601",
		OwnerName:      "Jane Smith",
		OwnerEmail:     "jane@example.com",
		OwnerPhone:     "312-555-0100",
		MailingAddress: "1 Oak Ln, Chicago, IL",
	}, "ForSaleByOwner")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.Len(t, owners.upserts, 1)
	assert.Equal(t, model.SourceScraped, owners.upserts[0].Source)
	assert.Equal(t, "Jane Smith", owners.upserts[0].OwnerName)

	require.Len(t, states.terminals, 1)
	st := states.terminals[0]
	assert.Equal(t, model.StatusEnriched, st.Status)
	assert.True(t, st.Locked)
	assert.Equal(t, model.SourceScraped, st.SourceUsed)
	assert.Empty(t, states.upserts, "complete data must not queue")
}

func TestProcessListingPartialDataQueues(t *testing.T) {
	states := newFakeStateStore()
	owners := &fakeOwnerStore{}
	m := NewManager(states, owners)

	hash, err := m.ProcessListing(context.Background(), model.Listing{
		Address:   "123 Main St, Chicago, IL 60601",
		OwnerName: "Jane Smith",
	}, "Trulia")
	require.NoError(t, err)

	// Partial data is saved, and the address still queues for enrichment.
	require.Len(t, owners.upserts, 1)
	assert.Equal(t, "Jane Smith", owners.upserts[0].OwnerName)

	require.Len(t, states.upserts, 1)
	queued := states.upserts[0]
	assert.Equal(t, hash, queued.AddressHash)
	assert.Equal(t, model.StatusNeverChecked, queued.Status)
	assert.True(t, queued.MissingFields["owner_email"])
	assert.True(t, queued.MissingFields["owner_phone"])
	assert.False(t, queued.MissingFields["owner_name"])
}

func TestProcessListingPlaceholdersDiscarded(t *testing.T) {
	states := newFakeStateStore()
	owners := &fakeOwnerStore{}
	m := NewManager(states, owners)

	_, err := m.ProcessListing(context.Background(), model.Listing{
		Address:    "123 Main St, Chicago, IL 60601",
		OwnerName:  "Property Manager",
		OwnerEmail: "support@hotpads.com",
		OwnerPhone: "0000000000",
	}, "Hotpads")
	require.NoError(t, err)

	// All fields were placeholders: nothing stored, address queued.
	assert.Empty(t, owners.upserts)
	require.Len(t, states.upserts, 1)
	assert.Equal(t, model.StatusNeverChecked, states.upserts[0].Status)
}

func TestProcessListingSameAddressSameHash(t *testing.T) {
	states := newFakeStateStore()
	m := NewManager(states, &fakeOwnerStore{})

	h1, err := m.ProcessListing(context.Background(), model.Listing{Address: "123 Main St, Chicago, IL 60601"}, "Trulia")
	require.NoError(t, err)
	h2, err := m.ProcessListing(context.Background(), model.Listing{Address: "123  MAIN ST., chicago, IL 60601"}, "Redfin")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}
