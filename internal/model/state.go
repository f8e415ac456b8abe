// Package model defines the shared data types for the owner enrichment pipeline.
package model

import "time"

// Status is the lifecycle state of an address in the enrichment queue.
type Status string

const (
	// StatusNeverChecked marks an address queued for a paid lookup.
	StatusNeverChecked Status = "never_checked"
	// StatusChecking is a legacy in-flight marker; this code never writes it
	// but must not re-queue rows carrying it.
	StatusChecking Status = "checking"
	// StatusEnriched marks an address with usable owner data (terminal).
	StatusEnriched Status = "enriched"
	// StatusNoOwnerData marks a successful lookup that returned nothing usable (terminal).
	StatusNoOwnerData Status = "no_owner_data"
	// StatusFailed marks a lookup failure; never retried automatically (terminal).
	StatusFailed Status = "failed"
	// StatusOrphaned marks an address whose source listing vanished (terminal).
	StatusOrphaned Status = "orphaned"
)

// Terminal reports whether the status is final. Terminal rows are never
// re-queued and their status is never overwritten.
func (s Status) Terminal() bool {
	switch s {
	case StatusEnriched, StatusNoOwnerData, StatusFailed, StatusOrphaned:
		return true
	}
	return false
}

// MergePriority orders statuses for hash-collision merges: the more advanced
// record wins. Orphaned ranks below never_checked so a live queue entry is
// never displaced by a dead one.
func (s Status) MergePriority() int {
	switch s {
	case StatusEnriched:
		return 4
	case StatusNoOwnerData:
		return 3
	case StatusFailed:
		return 2
	case StatusNeverChecked:
		return 1
	case StatusOrphaned:
		return 0
	}
	return -1
}

// Source markers for where owner data came from.
const (
	SourceScraped   = "scraped"
	SourceBatchData = "batchdata"
)

// EnrichmentState is one row of the per-address state machine, keyed by
// AddressHash. At most one row exists per unique address.
type EnrichmentState struct {
	AddressHash       string          `json:"address_hash"`
	NormalizedAddress string          `json:"normalized_address"`
	OriginalAddress   string          `json:"original_address,omitempty"`
	Status            Status          `json:"status"`
	Locked            bool            `json:"locked"`
	LockedAt          *time.Time      `json:"locked_at,omitempty"`
	ListingSource     string          `json:"listing_source,omitempty"`
	SourceUsed        string          `json:"source_used,omitempty"`
	RequestID         string          `json:"batchdata_request_id,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	MissingFields     map[string]bool `json:"missing_fields,omitempty"`
	CheckedAt         *time.Time      `json:"checked_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
