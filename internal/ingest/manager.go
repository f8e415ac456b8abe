// Package ingest decides what happens to a listing at scrape time: terminal
// enrichment when the scrape already carries complete owner data, or a queue
// entry for the paid worker otherwise. It never calls the provider itself.
package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/address"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/owner"
)

// StateStore is the slice of the state machine the manager needs.
type StateStore interface {
	Get(ctx context.Context, hash string) (*model.EnrichmentState, error)
	Upsert(ctx context.Context, st *model.EnrichmentState) error
	SetTerminal(ctx context.Context, st *model.EnrichmentState) error
	UpdateListingSource(ctx context.Context, hash, source string) error
}

// OwnerStore persists owner records.
type OwnerStore interface {
	Upsert(ctx context.Context, rec *model.OwnerRecord) error
}

// Manager routes scraped listings into the enrichment state machine.
type Manager struct {
	states StateStore
	owners OwnerStore
	log    *zap.Logger
}

// NewManager creates a Manager.
func NewManager(states StateStore, owners OwnerStore) *Manager {
	return &Manager{
		states: states,
		owners: owners,
		log:    zap.L().Named("ingest"),
	}
}

// ProcessListing registers one scraped listing and returns its address hash.
// A listing without an address is a no-op and returns "".
//
// Rows already in a terminal state are never modified beyond backfilling a
// missing listing_source: once an address is resolved (or has failed), new
// scrapes of the same address must not re-open it.
func (m *Manager) ProcessListing(ctx context.Context, listing model.Listing, source string) (string, error) {
	raw := strings.TrimSpace(listing.Address)
	if raw == "" {
		return "", nil
	}

	normalized, hash := address.HashAddress(raw)

	existing, err := m.states.Get(ctx, hash)
	if err != nil {
		return "", eris.Wrap(err, "ingest: lookup state")
	}
	if existing != nil && existing.Status.Terminal() {
		if existing.ListingSource == "" && source != "" {
			if err := m.states.UpdateListingSource(ctx, hash, source); err != nil {
				return "", eris.Wrap(err, "ingest: backfill listing source")
			}
		}
		m.log.Debug("address already terminal",
			zap.String("hash", hash),
			zap.String("status", string(existing.Status)))
		return hash, nil
	}

	name, email, phone := owner.Clean(listing.OwnerName, listing.OwnerEmail.String(), listing.OwnerPhone.String())
	mailing := strings.TrimSpace(listing.MailingAddress)
	complete, missing := owner.IsComplete(name, email, phone, mailing)

	hasAny := name != "" || email != "" || phone != "" || mailing != ""
	if hasAny {
		rec := &model.OwnerRecord{
			AddressHash:    hash,
			OwnerName:      name,
			OwnerEmail:     email,
			OwnerPhone:     phone,
			MailingAddress: mailing,
			Source:         model.SourceScraped,
			ListingSource:  source,
		}
		if err := m.owners.Upsert(ctx, rec); err != nil {
			return "", eris.Wrap(err, "ingest: upsert owner")
		}
	}

	if complete {
		err := m.states.SetTerminal(ctx, &model.EnrichmentState{
			AddressHash:       hash,
			NormalizedAddress: normalized,
			OriginalAddress:   raw,
			Status:            model.StatusEnriched,
			Locked:            true,
			ListingSource:     source,
			SourceUsed:        model.SourceScraped,
		})
		if err != nil {
			return "", eris.Wrap(err, "ingest: set enriched")
		}
		m.log.Info("listing complete at scrape time",
			zap.String("hash", hash),
			zap.String("source", source))
		return hash, nil
	}

	// Queue for paid enrichment; the upsert guard leaves any existing
	// non-never_checked row alone.
	err = m.states.Upsert(ctx, &model.EnrichmentState{
		AddressHash:       hash,
		NormalizedAddress: normalized,
		OriginalAddress:   raw,
		Status:            model.StatusNeverChecked,
		ListingSource:     source,
		MissingFields:     missing,
	})
	if err != nil {
		return "", eris.Wrap(err, "ingest: enqueue")
	}
	return hash, nil
}
