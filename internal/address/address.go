// Package address canonicalizes free-text property addresses into a stable
// identity key. Every component that touches an address must derive the key
// through this package so that the same property always maps to the same hash.
//
// The hash is an MD5 digest of the normalized string. It is not collision
// free; two distinct physical addresses that normalize to the same string (or
// collide in MD5) are treated as the same property. That approximation is
// accepted for this domain.
package address

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Parts is an address split into the components the skip-trace provider
// expects.
type Parts struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Normalize canonicalizes a raw address string: uppercase, punctuation noise
// stripped, whitespace collapsed to single spaces. It is total (never errors)
// and idempotent.
func Normalize(raw string) string {
	upper := strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '/', r == '-':
			// Keep fractional street numbers ("10212 1/2") and zip+4.
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Hash returns the MD5 hex digest of an already-normalized address.
func Hash(normalized string) string {
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashAddress normalizes raw and returns both the normalized string and its
// hash.
func HashAddress(raw string) (normalized, hash string) {
	normalized = Normalize(raw)
	return normalized, Hash(normalized)
}

// Split breaks an address into street/city/state/zip components. Comma
// delimited input ("Street, City, State Zip") is split exactly; comma-less
// input (typically an already-normalized address) is re-split best effort:
// the trailing token is taken as zip when numeric, the next as state when two
// letters, and the city is assumed to be a single word.
func Split(addr string) Parts {
	var p Parts
	if addr == "" {
		return p
	}

	if strings.Contains(addr, ",") {
		parts := strings.Split(addr, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case len(parts) >= 3:
			p.Street = parts[0]
			p.City = parts[1]
			stateZip := strings.Fields(parts[2])
			if len(stateZip) >= 2 {
				p.State = stateZip[0]
				p.Zip = stateZip[1]
			} else if len(stateZip) == 1 {
				p.State = stateZip[0]
			}
		case len(parts) == 2:
			p.Street = parts[0]
			p.City = parts[1]
		default:
			p.Street = parts[0]
		}
		return p
	}

	tokens := strings.Fields(addr)
	if len(tokens) < 4 {
		p.Street = addr
		return p
	}

	last := tokens[len(tokens)-1]
	if isZipLike(last) {
		p.Zip = last
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) >= 1 && len(tokens[len(tokens)-1]) == 2 {
		p.State = tokens[len(tokens)-1]
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) >= 2 {
		p.City = tokens[len(tokens)-1]
		p.Street = strings.Join(tokens[:len(tokens)-1], " ")
	} else {
		p.Street = strings.Join(tokens, " ")
	}
	return p
}

// isZipLike matches 5-digit and zip+4 forms.
func isZipLike(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
