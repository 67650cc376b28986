package matcher

import (
	"math"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio scores the similarity of two strings from 0 to 100 using the sequence matcher ratio 2*M/T.
//
// Identical strings (including two empty strings) score 100; an empty string against a non-empty one scores 0.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	return percent(sequenceRatio(chars(a), chars(b)))
}

// PartialRatio scores the best alignment of the shorter string inside the longer one, from 0 to 100.
//
// Each matching block anchors a window of the longer string as long as the shorter string;
// the best window ratio wins and a near-perfect window short-circuits to 100.
func PartialRatio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	shorter, longer := chars(a), chars(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	m := difflib.NewMatcher(shorter, longer)
	best := 0.0
	for _, block := range m.GetMatchingBlocks() {
		start := block.B - block.A
		if start < 0 {
			start = 0
		}
		end := start + len(shorter)
		if end > len(longer) {
			end = len(longer)
		}

		r := sequenceRatio(shorter, longer[start:end])
		if r > 0.995 {
			return 100
		}
		best = math.Max(best, r)
	}
	return percent(best)
}

func sequenceRatio(a, b []string) float64 {
	return difflib.NewMatcher(a, b).Ratio()
}

func percent(r float64) int {
	return int(math.Round(r * 100))
}

// chars splits a string into one element per rune for the sequence matcher.
func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
