package matcher

import (
	"slices"
	"unicode"
)

// NumbersMatch reports whether both strings carry the same multiset of digit runs.
//
// "Volume 1" and "Volume 2" fail, "Track 1 of 2" and "Track 2 of 1" pass, two strings without digits pass.
func NumbersMatch(a, b string) bool {
	return slices.Equal(digitRuns(a), digitRuns(b))
}

// digitRuns returns every maximal run of decimal digits, sorted.
func digitRuns(s string) []string {
	var runs []string
	start := -1
	for i, r := range s {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	slices.Sort(runs)
	return runs
}
