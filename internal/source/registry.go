package source

import (
	"strings"

	"github.com/sells-group/enrich-cli/internal/db"
)

// Registry resolves listing-source names to adapters. Lookups accept the
// canonical name, the table name, or any alias, case-insensitively.
type Registry struct {
	adapters []Adapter
	byKey    map[string]Adapter
}

// NewRegistry builds adapters for every spec and indexes their aliases.
func NewRegistry(specs []TableSpec, pool db.Pool) *Registry {
	r := &Registry{byKey: make(map[string]Adapter)}
	for _, spec := range specs {
		a := NewAdapter(spec, pool)
		r.adapters = append(r.adapters, a)

		r.byKey[normalizeKey(spec.Source)] = a
		r.byKey[normalizeKey(spec.Table)] = a
		for _, alias := range spec.Aliases {
			r.byKey[normalizeKey(alias)] = a
		}
	}
	return r
}

// Resolve returns the adapter for a source name, or nil when unknown.
func (r *Registry) Resolve(source string) Adapter {
	return r.byKey[normalizeKey(source)]
}

// All returns every registered adapter in registration order.
func (r *Registry) All() []Adapter {
	return r.adapters
}

// normalizeKey folds case and separator differences so "Zillow FSBO",
// "zillow-fsbo", and "zillow fsbo" all resolve to the same adapter.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, ".", " ")
	return strings.Join(strings.Fields(s), " ")
}
