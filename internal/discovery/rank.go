package discovery

import (
	"slices"
	"strings"

	"github.com/john/livewatch/internal/live"
)

// PreferLanguage moves candidates tagged with lang ahead of the rest, keeping
// the relative order inside each group. Nothing is dropped.
func PreferLanguage(candidates []live.Candidate, lang string) []live.Candidate {
	matches := make([]live.Candidate, 0, len(candidates))
	var rest []live.Candidate
	for _, c := range candidates {
		if strings.EqualFold(c.Language, lang) {
			matches = append(matches, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(matches, rest...)
}

// Dedup keeps the first candidate for each ID.
func Dedup(candidates []live.Candidate) []live.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]live.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// FilterWithFallback keeps the candidates tagged with lang, unless fewer than
// minMatches are, in which case every candidate is kept.
func FilterWithFallback(candidates []live.Candidate, lang string, minMatches int) []live.Candidate {
	var matches []live.Candidate
	for _, c := range candidates {
		if strings.EqualFold(c.Language, lang) {
			matches = append(matches, c)
		}
	}
	if len(matches) < minMatches {
		return candidates
	}
	return matches
}

// SortByViewers orders list by viewer count, highest first. Ties keep their
// input order.
func SortByViewers(list []live.SuggestedStream) {
	slices.SortStableFunc(list, func(a, b live.SuggestedStream) int {
		return b.ViewerCount - a.ViewerCount
	})
}

// Interleave merges two ranked lists as a0, b0, a1, b1, ... and appends the
// remainder of the longer list.
func Interleave(a, b []live.SuggestedStream) []live.SuggestedStream {
	out := make([]live.SuggestedStream, 0, len(a)+len(b))
	for i := 0; i < max(len(a), len(b)); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}
