package rank

import (
	"math"
	"strings"
)

// fuzzyThreshold gates the fuzzy bonus: only full subsequence matches (1.0)
// and substring matches (0.9) clear it, since partial matches cap at 0.5.
const fuzzyThreshold = 0.6

// minTermLen drops single-character query terms from per-term matching.
const minTermLen = 2

// Fields holds the scoreable text of a tab-like candidate.
// All fields must be normalized before scoring.
type Fields struct {
	Title       string
	URL         string
	Description string
	Keywords    string
}

// Normalize lower-cases and trims a query or field for matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Terms splits a normalized query into whitespace-separated terms.
func Terms(normalized string) []string {
	return strings.Fields(normalized)
}

// Score computes the relevance of a candidate against a query.
//
// The title tiers are exclusive (exact beats prefix beats containment);
// everything else stacks. Title text is intentionally counted by both the
// full-query tier and the per-term loop, so multi-field matches inflate
// additively.
func Score(f Fields, terms []string, query string) int {
	score := 0

	switch {
	case f.Title == query:
		score += 100
	case strings.HasPrefix(f.Title, query):
		score += 80
	case strings.Contains(f.Title, query):
		score += 60
	}

	if strings.Contains(f.URL, query) {
		score += 40
	}

	for _, term := range terms {
		if len(term) < minTermLen {
			continue
		}
		if strings.Contains(f.Title, term) {
			score += 20
		}
		if strings.Contains(f.URL, term) {
			score += 15
		}
		if strings.Contains(f.Description, term) {
			score += 10
		}
		if strings.Contains(f.Keywords, term) {
			score += 10
		}
		if conf := Fuzzy(term, f.Title); conf > fuzzyThreshold {
			score += int(math.Floor(conf * 15))
		}
	}

	return score
}

// ScoreBookmark scores a bookmark against a query. Bookmarks carry no
// description or keywords, so only title and URL participate.
func ScoreBookmark(title, url string, terms []string, query string) int {
	score := 0

	switch {
	case title == query:
		score += 100
	case strings.HasPrefix(title, query):
		score += 80
	case strings.Contains(title, query):
		score += 60
	}

	if strings.Contains(url, query) {
		score += 40
	}

	for _, term := range terms {
		if len(term) < minTermLen {
			continue
		}
		if strings.Contains(title, term) {
			score += 20
		}
		if strings.Contains(url, term) {
			score += 15
		}
	}

	return score
}

// ScoreQuickAccess scores a curated quick-access page. Keyword lists are
// hand-picked, so a prefix relation in either direction is treated as a
// near-certain intent match and outranks plain containment.
func ScoreQuickAccess(title, url string, keywords []string, query string) int {
	score := 0

	if strings.Contains(title, query) {
		score += 50
	}

	for _, keyword := range keywords {
		if strings.HasPrefix(keyword, query) || strings.HasPrefix(query, keyword) {
			score += 80
		} else if strings.Contains(keyword, query) {
			score += 40
		}
	}

	if strings.Contains(url, query) {
		score += 30
	}

	return score
}

// ScoreClosedSession scores a recently closed session with a lighter rule:
// sessions are a transient fallback class and don't warrant the full tiering.
func ScoreClosedSession(title, url string, terms []string, query string) int {
	score := 0

	if strings.Contains(title, query) {
		score += 50
	}
	if strings.Contains(url, query) {
		score += 30
	}

	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 10
		}
		if strings.Contains(url, term) {
			score += 5
		}
	}

	return score
}
