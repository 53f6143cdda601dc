// Package normalize canonicalizes contact identifiers before they are stored
// or compared. Every function is pure, total and idempotent.
package normalize

import (
	"strings"
	"unicode"
)

// DefaultCountryCode is prefixed to 11-digit domestic numbers starting with 0.
const DefaultCountryCode = "+63"

// Mobile strips every whitespace rune and hyphen from raw, rewrites a
// leading "00" to "+" and an 11-digit domestic number starting with "0" to
// DefaultCountryCode. Anything else passes through. The bool is false when nothing remains.
func Mobile(raw string) (string, bool) {
	return MobileWithCountry(raw, DefaultCountryCode)
}

// MobileWithCountry is Mobile with an explicit country calling code.
func MobileWithCountry(raw, countryCode string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return "", false
	}
	switch {
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case len(s) == 11 && s[0] == '0' && allDigits(s):
		s = countryCode + s[1:]
	}
	return s, true
}

// Email trims and lowercases raw. The bool is false when nothing remains.
func Email(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	return s, true
}

// MobilePtr is Mobile for nullable columns.
func MobilePtr(raw string) *string {
	if s, ok := Mobile(raw); ok {
		return &s
	}
	return nil
}

// EmailPtr is Email for nullable columns.
func EmailPtr(raw string) *string {
	if s, ok := Email(raw); ok {
		return &s
	}
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
