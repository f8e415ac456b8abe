package syncback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/state"
)

type fakeStates struct {
	targets []state.SyncTarget
}

func (f *fakeStates) ListSyncTargets(_ context.Context) ([]state.SyncTarget, error) {
	return f.targets, nil
}

type fakeOwners struct {
	records map[string]*model.OwnerRecord
	err     error
}

func (f *fakeOwners) Get(_ context.Context, hash string) (*model.OwnerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[hash], nil
}

type fakeAdapter struct {
	source.Adapter
	table   string
	updates map[string]*model.OwnerRecord
	err     error
}

func (f *fakeAdapter) Table() string { return f.table }

func (f *fakeAdapter) UpdateOwner(_ context.Context, hash string, rec *model.OwnerRecord) error {
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = make(map[string]*model.OwnerRecord)
	}
	f.updates[hash] = rec
	return nil
}

type fakeResolver struct {
	adapters map[string]*fakeAdapter
}

func (f *fakeResolver) Resolve(name string) source.Adapter {
	a, ok := f.adapters[name]
	if !ok {
		return nil
	}
	return a
}

func TestRunSyncsOwnerData(t *testing.T) {
	adapter := &fakeAdapter{table: "trulia_listings"}
	s := New(
		&fakeStates{targets: []state.SyncTarget{
			{AddressHash: "h1", ListingSource: "Trulia", Status: model.StatusEnriched},
		}},
		&fakeOwners{records: map[string]*model.OwnerRecord{
			"h1": {AddressHash: "h1", OwnerName: "Jane Smith"},
		}},
		&fakeResolver{adapters: map[string]*fakeAdapter{"Trulia": adapter}},
	)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	require.NotNil(t, adapter.updates["h1"])
	assert.Equal(t, "Jane Smith", adapter.updates["h1"].OwnerName)
}

func TestRunSkipsUnknownSourceAndMissingOwner(t *testing.T) {
	adapter := &fakeAdapter{table: "redfin_listings"}
	s := New(
		&fakeStates{targets: []state.SyncTarget{
			{AddressHash: "h1", ListingSource: "Craigslist", Status: model.StatusEnriched},
			{AddressHash: "h2", ListingSource: "Redfin", Status: model.StatusNoOwnerData},
		}},
		&fakeOwners{records: map[string]*model.OwnerRecord{}},
		&fakeResolver{adapters: map[string]*fakeAdapter{"Redfin": adapter}},
	)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Synced)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, adapter.updates)
}

func TestRunCountsFailuresWithoutAborting(t *testing.T) {
	failing := &fakeAdapter{table: "hotpads_listings", err: errors.New("column gone")}
	working := &fakeAdapter{table: "trulia_listings"}
	s := New(
		&fakeStates{targets: []state.SyncTarget{
			{AddressHash: "h1", ListingSource: "Hotpads", Status: model.StatusEnriched},
			{AddressHash: "h2", ListingSource: "Trulia", Status: model.StatusEnriched},
		}},
		&fakeOwners{records: map[string]*model.OwnerRecord{
			"h1": {AddressHash: "h1", OwnerName: "A"},
			"h2": {AddressHash: "h2", OwnerName: "B"},
		}},
		&fakeResolver{adapters: map[string]*fakeAdapter{"Hotpads": failing, "Trulia": working}},
	)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Synced)
}
