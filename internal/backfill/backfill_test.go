package backfill

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/address"
	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
)

type fakeAdapter struct {
	source.Adapter
	name  string
	table string
	rows  []source.ListingRow

	mu          sync.Mutex
	hashUpdates map[int64]string
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Table() string { return f.table }

func (f *fakeAdapter) ScanPage(_ context.Context, page, size int) ([]source.ListingRow, error) {
	start := page * size
	if start >= len(f.rows) {
		return nil, nil
	}
	end := start + size
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[start:end], nil
}

func (f *fakeAdapter) UpdateHash(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashUpdates == nil {
		f.hashUpdates = make(map[int64]string)
	}
	f.hashUpdates[id] = hash
	return nil
}

type fakeStates struct {
	mu     sync.Mutex
	states map[string]*model.EnrichmentState
	filled map[string]string
}

func (f *fakeStates) Get(_ context.Context, hash string) (*model.EnrichmentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[hash], nil
}

func (f *fakeStates) FillOriginalAddress(_ context.Context, hash, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filled == nil {
		f.filled = make(map[string]string)
	}
	f.filled[hash] = raw
	return nil
}

type fakeOwners struct {
	mu      sync.Mutex
	records map[string]*model.OwnerRecord
}

func (f *fakeOwners) Get(_ context.Context, hash string) (*model.OwnerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[hash], nil
}

type captureUpsert struct {
	mu      sync.Mutex
	batches [][][]any
	configs []db.UpsertConfig
}

func (c *captureUpsert) fn(_ context.Context, _ db.Pool, cfg db.UpsertConfig, rows [][]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, rows)
	c.configs = append(c.configs, cfg)
	return int64(len(rows)), nil
}

func newTestQueuer(fakes []*fakeAdapter, states *fakeStates, owners *fakeOwners) (*Queuer, *captureUpsert) {
	adapters := make([]source.Adapter, len(fakes))
	for i, a := range fakes {
		adapters[i] = a
	}
	q := NewQueuer(nil, adapters, states, owners, 10, 2)
	capture := &captureUpsert{}
	q.upsert = capture.fn
	return q, capture
}

func TestRunQueuesNewAddresses(t *testing.T) {
	raw := "123 Main St, Chicago, IL 60601"
	normalized, hash := address.HashAddress(raw)

	ad := &fakeAdapter{name: "Trulia", table: "trulia_listings", rows: []source.ListingRow{
		{ID: 1, RawAddress: raw, StoredHash: hash},
	}}
	q, captured := newTestQueuer([]*fakeAdapter{ad}, &fakeStates{}, &fakeOwners{})

	report, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 0, report.Repaired)
	assert.Equal(t, 1, report.PerTable["trulia_listings"])

	require.Len(t, captured.batches, 1)
	row := captured.batches[0][0]
	assert.Equal(t, hash, row[0])
	assert.Equal(t, normalized, row[1])
	assert.Equal(t, raw, row[2])
	assert.Equal(t, "never_checked", row[3])
	assert.Equal(t, false, row[4])
	assert.Equal(t, "Trulia", row[5])
	assert.Contains(t, captured.configs[0].ConflictGuard, "never_checked")
}

func TestRunRepairsStaleHashes(t *testing.T) {
	raw := "123 Main St, Chicago, IL 60601"
	_, hash := address.HashAddress(raw)

	ad := &fakeAdapter{name: "Redfin", table: "redfin_listings", rows: []source.ListingRow{
		{ID: 7, RawAddress: raw, StoredHash: "stale"},
	}}
	q, _ := newTestQueuer([]*fakeAdapter{ad}, &fakeStates{}, &fakeOwners{})

	report, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, hash, ad.hashUpdates[7])
}

func TestRunSkipsKnownStateAndBackfillsOriginal(t *testing.T) {
	raw := "123 Main St, Chicago, IL 60601"
	_, hash := address.HashAddress(raw)

	ad := &fakeAdapter{name: "Hotpads", table: "hotpads_listings", rows: []source.ListingRow{
		{ID: 1, RawAddress: raw, StoredHash: hash},
	}}
	states := &fakeStates{states: map[string]*model.EnrichmentState{
		hash: {AddressHash: hash, Status: model.StatusFailed},
	}}
	q, captured := newTestQueuer([]*fakeAdapter{ad}, states, &fakeOwners{})

	report, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Queued)
	assert.Empty(t, captured.batches)
	assert.Equal(t, raw, states.filled[hash])
}

func TestRunSkipsCompleteOwnerRecord(t *testing.T) {
	raw := "123 Main St, Chicago, IL 60601"
	_, hash := address.HashAddress(raw)

	ad := &fakeAdapter{name: "Trulia", table: "trulia_listings", rows: []source.ListingRow{
		{ID: 1, RawAddress: raw, StoredHash: hash},
	}}
	owners := &fakeOwners{records: map[string]*model.OwnerRecord{
		hash: {
			AddressHash: hash, OwnerName: "Jane Smith", OwnerEmail: "jane@example.com",
			OwnerPhone: "312-555-0100", MailingAddress: "1 Oak Ln, Chicago, IL",
		},
	}}
	q, captured := newTestQueuer([]*fakeAdapter{ad}, &fakeStates{}, owners)

	report, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Queued)
	assert.Empty(t, captured.batches)
}

func TestRunDeduplicatesAcrossTables(t *testing.T) {
	raw := "123 Main St, Chicago, IL 60601"
	_, hash := address.HashAddress(raw)

	ad1 := &fakeAdapter{name: "Trulia", table: "trulia_listings", rows: []source.ListingRow{
		{ID: 1, RawAddress: raw, StoredHash: hash},
	}}
	ad2 := &fakeAdapter{name: "Redfin", table: "redfin_listings", rows: []source.ListingRow{
		{ID: 2, RawAddress: raw, StoredHash: hash},
	}}
	q, _ := newTestQueuer([]*fakeAdapter{ad1, ad2}, &fakeStates{}, &fakeOwners{})

	report, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queued)
}

func TestRunSkipsEmptyAddresses(t *testing.T) {
	ad := &fakeAdapter{name: "Trulia", table: "trulia_listings", rows: []source.ListingRow{
		{ID: 1, RawAddress: "   "},
	}}
	q, captured := newTestQueuer([]*fakeAdapter{ad}, &fakeStates{}, &fakeOwners{})

	report, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Queued)
	assert.Empty(t, captured.batches)
}
