package domain

import (
	"fmt"
	"sort"
	"time"
)

// Day is a calendar day in canonical YYYY-MM-DD form. There is no
// time-of-day component and no timezone conversion: a day submitted by one
// member is the same day for every member.
type Day string

// ParseDay validates text as a calendar day and returns it in canonical
// form. The input must be exactly 4-2-2 zero-padded digit groups separated
// by hyphens and name a real calendar date.
func ParseDay(text string) (Day, error) {
	if len(text) != 10 || text[4] != '-' || text[7] != '-' {
		return "", fmt.Errorf("%w: day %q must be YYYY-MM-DD", ErrInvalidInput, text)
	}
	for i, c := range text {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: day %q must be YYYY-MM-DD", ErrInvalidInput, text)
		}
	}
	t, err := time.Parse("2006-01-02", text)
	if err != nil {
		return "", fmt.Errorf("%w: day %q is not a valid calendar date", ErrInvalidInput, text)
	}
	// time.Parse normalizes out-of-range components (e.g. Feb 30 -> Mar 2);
	// require the round trip to be exact.
	if t.Format("2006-01-02") != text {
		return "", fmt.Errorf("%w: day %q is not a valid calendar date", ErrInvalidInput, text)
	}
	return Day(text), nil
}

// String returns the canonical zero-padded YYYY-MM-DD form.
func (d Day) String() string { return string(d) }

// Compare returns -1, 0 or 1. Lexicographic order on the canonical form
// equals calendar order because every component is fixed-width zero-padded.
func (d Day) Compare(other Day) int {
	switch {
	case d < other:
		return -1
	case d > other:
		return 1
	default:
		return 0
	}
}

// Display returns a human-readable long form including the weekday,
// e.g. "Tue, May 30, 2023". Invalid days render as-is.
func (d Day) Display() string {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return string(d)
	}
	return t.Format("Mon, Jan 2, 2006")
}

// NormalizeDays deduplicates and sorts days ascending. Submissions are
// always stored in this form so that comparisons are deterministic.
func NormalizeDays(days []Day) []Day {
	seen := make(map[Day]struct{}, len(days))
	out := make([]Day, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
