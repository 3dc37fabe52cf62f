// Package rank implements the relevance scoring used across every result
// class: open tabs, bookmarks, quick-access pages, and recently closed
// sessions. All functions are pure; callers pass already-normalized
// (lower-cased, trimmed) text.
package rank

import "strings"

// Fuzzy reports how closely needle matches haystack as a confidence in [0,1].
//
// Exact equality scores 1, substring containment 0.9. Otherwise the haystack
// is scanned once left to right, greedily consuming needle characters in
// order. A full subsequence match scores matched/len(needle); a partial one
// is halved. This is deliberately not edit distance: it has to run against
// the whole index on every keystroke.
func Fuzzy(needle, haystack string) float64 {
	if len(needle) == 0 || len(haystack) == 0 {
		return 0
	}
	if needle == haystack {
		return 1
	}
	if strings.Contains(haystack, needle) {
		return 0.9
	}

	next := 0
	matched := 0
	for i := 0; i < len(haystack) && next < len(needle); i++ {
		if haystack[i] == needle[next] {
			matched++
			next++
		}
	}

	conf := float64(matched) / float64(len(needle))
	if next < len(needle) {
		// Didn't consume the whole needle: penalize by half.
		return conf * 0.5
	}
	return conf
}
