package model

import "time"

// OwnerRecord is the canonical deduplicated contact record for a property,
// keyed by AddressHash. Listings from different sources that normalize to the
// same address share exactly one OwnerRecord.
type OwnerRecord struct {
	AddressHash    string    `json:"address_hash"`
	OwnerName      string    `json:"owner_name,omitempty"`
	OwnerEmail     string    `json:"owner_email,omitempty"`
	OwnerPhone     string    `json:"owner_phone,omitempty"`
	MailingAddress string    `json:"mailing_address,omitempty"`
	Source         string    `json:"source"`
	ListingSource  string    `json:"listing_source,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
