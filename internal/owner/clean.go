// Package owner holds the canonical property-owner contact records and the
// placeholder-cleaning rules that keep platform junk out of them.
package owner

import "strings"

// Listing platforms stamp their own contact details onto listings; anything
// from these domains identifies the platform, not the owner.
var placeholderDomains = []string{
	"hotpads.com",
	"zillow.com",
	"trulia.com",
	"apartments.com",
	"redfin.com",
	"streetlines.com",
}

var placeholderEmails = map[string]bool{
	"support@hotpads.com":  true,
	"noreply@zillow.com":   true,
	"contact@trulia.com":   true,
	"help@apartments.com":  true,
}

var placeholderPhones = map[string]bool{
	"0000000000": true,
	"1111111111": true,
	"1234567890": true,
	"8000000000": true,
}

// Role titles and null-ish strings that scrapers surface where an owner name
// should be.
var placeholderNames = map[string]bool{
	"":                 true,
	"support":          true,
	"admin":            true,
	"hotpads support":  true,
	"listing agent":    true,
	"property manager": true,
	"leasing office":   true,
	"null":             true,
	"none":             true,
	"n/a":              true,
	"unknown":          true,
}

// IsPlaceholderEmail reports whether an email is empty or a known platform
// placeholder.
func IsPlaceholderEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return true
	}
	if placeholderEmails[e] {
		return true
	}
	for _, domain := range placeholderDomains {
		if strings.HasSuffix(e, "@"+domain) {
			return true
		}
	}
	return false
}

// IsPlaceholderPhone reports whether a phone number is empty, a known fake,
// or all one digit.
func IsPlaceholderPhone(phone string) bool {
	digits := digitsOnly(phone)
	if digits == "" {
		return true
	}
	if placeholderPhones[digits] {
		return true
	}
	if len(digits) >= 10 && allSameDigit(digits) {
		return true
	}
	return false
}

// IsValidOwnerName reports whether a name plausibly identifies a person
// rather than a platform role.
func IsValidOwnerName(name string) bool {
	return !placeholderNames[strings.ToLower(strings.TrimSpace(name))]
}

// Clean strips placeholder values, returning empty strings for anything that
// does not survive.
func Clean(name, email, phone string) (cleanName, cleanEmail, cleanPhone string) {
	if IsValidOwnerName(name) {
		cleanName = strings.TrimSpace(name)
	}
	if !IsPlaceholderEmail(email) {
		cleanEmail = strings.TrimSpace(email)
	}
	if !IsPlaceholderPhone(phone) {
		cleanPhone = strings.TrimSpace(phone)
	}
	return cleanName, cleanEmail, cleanPhone
}

// IsComplete reports whether the owner data is complete for enrichment
// purposes: all three contact fields valid plus a mailing address. The
// missing map names each absent field.
func IsComplete(name, email, phone, mailing string) (bool, map[string]bool) {
	cleanName, cleanEmail, cleanPhone := Clean(name, email, phone)

	m := strings.ToLower(strings.TrimSpace(mailing))
	hasMailing := m != "" && m != "null" && m != "none"

	missing := map[string]bool{
		"owner_name":      cleanName == "",
		"owner_email":     cleanEmail == "",
		"owner_phone":     cleanPhone == "",
		"mailing_address": !hasMailing,
	}
	complete := cleanName != "" && cleanEmail != "" && cleanPhone != "" && hasMailing
	return complete, missing
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
