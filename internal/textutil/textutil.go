// Package textutil holds the text canonicalization used for title matching
// and cache keys. Scoring, the trends caches and the trending-topics parser
// must all agree on one normal form, so it lives in a single place.
package textutil

import "strings"

// Normalize collapses all runs of whitespace to single spaces, trims the
// result and lower-cases it.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
