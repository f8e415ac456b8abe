package worker

import (
	"context"
	"time"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/state"
	"github.com/sells-group/enrich-cli/pkg/batchdata"
)

type fakeStates struct {
	queue     []*model.EnrichmentState
	usage     int
	eligible  int
	sample    []model.EnrichmentState
	cleared   int64
	terminals map[string]state.TerminalUpdate

	acquireCalls int
	markErr      error
}

func newFakeStates() *fakeStates {
	return &fakeStates{terminals: make(map[string]state.TerminalUpdate)}
}

func (f *fakeStates) AcquireNext(_ context.Context, prioritySource string) (*model.EnrichmentState, error) {
	f.acquireCalls++
	for i, st := range f.queue {
		if prioritySource != "" && st.ListingSource != prioritySource {
			continue
		}
		f.queue = append(f.queue[:i], f.queue[i+1:]...)
		st.Locked = true
		return st, nil
	}
	return nil, nil
}

func (f *fakeStates) ClearStaleLocks(_ context.Context, _ time.Duration) (int64, error) {
	return f.cleared, nil
}

func (f *fakeStates) CountDailyUsage(_ context.Context, _ time.Time) (int, error) {
	return f.usage, nil
}

func (f *fakeStates) CountEligible(_ context.Context, _ string) (int, error) {
	return f.eligible, nil
}

func (f *fakeStates) SampleEligible(_ context.Context, n int) ([]model.EnrichmentState, error) {
	if len(f.sample) > n {
		return f.sample[:n], nil
	}
	return f.sample, nil
}

func (f *fakeStates) MarkTerminal(_ context.Context, hash string, upd state.TerminalUpdate) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.terminals[hash] = upd
	return nil
}

type fakeOwners struct {
	upserts []*model.OwnerRecord
	err     error
}

func (f *fakeOwners) Upsert(_ context.Context, rec *model.OwnerRecord) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

// fakeSourceAdapter simulates one listing table for the worker's free paths.
type fakeSourceAdapter struct {
	source.Adapter
	table       string
	exists      bool
	existsErr   error
	ownerName   string
	ownerRecord *model.OwnerRecord

	syncedBack []*model.OwnerRecord
	syncErr    error
}

func (f *fakeSourceAdapter) Table() string { return f.table }

func (f *fakeSourceAdapter) ExistsByHash(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeSourceAdapter) OwnerNameByHash(_ context.Context, _ string) (string, error) {
	return f.ownerName, nil
}

func (f *fakeSourceAdapter) OwnerByHash(_ context.Context, _ string) (*model.OwnerRecord, error) {
	return f.ownerRecord, nil
}

func (f *fakeSourceAdapter) UpdateOwner(_ context.Context, _ string, rec *model.OwnerRecord) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	f.syncedBack = append(f.syncedBack, rec)
	return nil
}

type fakeResolver struct {
	adapters map[string]*fakeSourceAdapter
}

func (f *fakeResolver) Resolve(name string) source.Adapter {
	a, ok := f.adapters[name]
	if !ok {
		return nil
	}
	return a
}

type fakeClient struct {
	resp  *batchdata.Response
	err   error
	calls []batchdata.Address
}

func (f *fakeClient) SkipTrace(_ context.Context, addr batchdata.Address) (*batchdata.Response, error) {
	f.calls = append(f.calls, addr)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}
