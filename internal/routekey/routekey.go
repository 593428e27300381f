// Package routekey turns free text into canonical route keys.
package routekey

import (
	"regexp"
	"strings"
)

// Prefix is the store namespace every route key lives under.
const Prefix = "results/"

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\s_-]`)
	spaces     = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-+`)
	valid      = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9_]+)*$`)
)

// Normalize lowercases input, drops characters outside [a-z0-9 whitespace _ -],
// turns whitespace runs into single hyphens, collapses repeated hyphens and
// trims hyphens at both ends. It never fails; garbage input yields "".
func Normalize(input string) string {
	s := strings.ToLower(input)
	s = disallowed.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, "-")
	s = hyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Valid reports whether key already has canonical form.
func Valid(key string) bool {
	return valid.MatchString(key)
}

// StoreKey returns the key-value store key for a normalized route key.
func StoreKey(key string) string {
	return Prefix + key
}

// FromStoreKey strips the namespace prefix. ok is false for foreign keys.
func FromStoreKey(storeKey string) (key string, ok bool) {
	if !strings.HasPrefix(storeKey, Prefix) {
		return "", false
	}
	return strings.TrimPrefix(storeKey, Prefix), true
}
