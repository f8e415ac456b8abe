// Package source adapts the seven heterogeneous listing tables behind one
// interface. Each table stores owner contact data under different column
// names and shapes (scalar vs JSON array); a TableSpec captures the mapping
// and a single pgx-backed adapter serves all of them.
package source

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ColumnSpec names one owner-data column and whether it stores a JSON array.
type ColumnSpec struct {
	Name  string `yaml:"name"`
	Array bool   `yaml:"array"`
}

// TableSpec describes one listing table's schema and source aliases.
type TableSpec struct {
	// Source is the canonical display name written into listing_source.
	Source        string       `yaml:"source"`
	Table         string       `yaml:"table"`
	AddressColumn string       `yaml:"address_column"`
	NameColumn    string       `yaml:"name_column"`
	EmailColumns  []ColumnSpec `yaml:"email_columns"`
	PhoneColumns  []ColumnSpec `yaml:"phone_columns"`
	// MailingColumn is empty for tables without a mailing address column.
	MailingColumn string   `yaml:"mailing_column"`
	Aliases       []string `yaml:"aliases"`
}

// DefaultSpecs returns the built-in mappings for the seven production tables.
func DefaultSpecs() []TableSpec {
	return []TableSpec{
		{
			Source:        "ForSaleByOwner",
			Table:         "listings",
			AddressColumn: "address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "owner_emails", Array: true}},
			PhoneColumns:  []ColumnSpec{{Name: "owner_phones", Array: true}},
			MailingColumn: "mailing_address",
			Aliases:       []string{"fsbo", "forsalebyowner"},
		},
		{
			Source:        "Zillow FSBO",
			Table:         "zillow_fsbo_listings",
			AddressColumn: "address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "owner_email"}},
			PhoneColumns:  []ColumnSpec{{Name: "phone_number"}},
			Aliases:       []string{"zillow-fsbo"},
		},
		{
			Source:        "Zillow FRBO",
			Table:         "zillow_frbo_listings",
			AddressColumn: "address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "owner_email"}},
			PhoneColumns:  []ColumnSpec{{Name: "phone_number"}},
			Aliases:       []string{"zillow-frbo"},
		},
		{
			Source:        "Hotpads",
			Table:         "hotpads_listings",
			AddressColumn: "address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "email"}},
			// Hotpads carries the phone in two columns; both get written on
			// sync-back and either satisfies a read.
			PhoneColumns: []ColumnSpec{{Name: "owner_phone"}, {Name: "phone_number"}},
		},
		{
			Source:        "Apartments.com",
			Table:         "apartments_frbo_chicago",
			AddressColumn: "full_address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "owner_email"}},
			PhoneColumns:  []ColumnSpec{{Name: "phone_numbers", Array: true}},
			Aliases:       []string{"apartments"},
		},
		{
			Source:        "Trulia",
			Table:         "trulia_listings",
			AddressColumn: "address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "emails"}},
			PhoneColumns:  []ColumnSpec{{Name: "phones"}},
			MailingColumn: "mailing_address",
		},
		{
			Source:        "Redfin",
			Table:         "redfin_listings",
			AddressColumn: "address",
			NameColumn:    "owner_name",
			EmailColumns:  []ColumnSpec{{Name: "emails"}},
			PhoneColumns:  []ColumnSpec{{Name: "phones"}},
			MailingColumn: "mailing_address",
		},
	}
}

// LoadSpecs returns the default specs with any overrides from the YAML file
// applied by table name. An empty path returns the defaults unchanged.
func LoadSpecs(path string) ([]TableSpec, error) {
	specs := DefaultSpecs()
	if path == "" {
		return specs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read map file %s", path)
	}

	var overrides []TableSpec
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "source: parse map file %s", path)
	}

	byTable := make(map[string]int, len(specs))
	for i, s := range specs {
		byTable[s.Table] = i
	}
	for _, o := range overrides {
		if o.Table == "" {
			return nil, eris.New("source: map file entry missing table name")
		}
		if i, ok := byTable[o.Table]; ok {
			specs[i] = o
		} else {
			specs = append(specs, o)
			byTable[o.Table] = len(specs) - 1
		}
	}
	return specs, nil
}
