package model

import "encoding/json"

// FlexString accepts either a JSON string or an array of strings; some
// scrapers emit `"owner_phone": "217-555-0100"`, others
// `"owner_phone": ["217-555-0100", "..."]`. The first non-empty element wins.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for _, v := range list {
		if v != "" {
			*f = FlexString(v)
			return nil
		}
	}
	*f = ""
	return nil
}

// String returns the scalar value.
func (f FlexString) String() string { return string(f) }

// Listing is a raw scraped record handed to the enrichment manager at ingest
// time. Only Address is required; owner fields may be absent or placeholders.
type Listing struct {
	Address        string     `json:"address"`
	OwnerName      string     `json:"owner_name,omitempty"`
	OwnerEmail     FlexString `json:"owner_email,omitempty"`
	OwnerPhone     FlexString `json:"owner_phone,omitempty"`
	MailingAddress string     `json:"mailing_address,omitempty"`
}
