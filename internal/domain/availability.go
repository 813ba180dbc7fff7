package domain

import "sort"

// Intersection is the result of merging every member's submitted days.
// Complete distinguishes "nobody can make any day" (Complete with empty
// CommonDays) from "not everyone has submitted yet" (not Complete).
// swagger:model Intersection
type Intersection struct {
	Complete   bool  `json:"complete"`
	CommonDays []Day `json:"common_days"`
	Submitted  int   `json:"submitted"`
	Total      int   `json:"total"`
}

// ComputeIntersection merges the availability sets of members into the days
// every member can make. A member counts as submitted only with a non-empty
// entry: an empty submission means "not decided yet", not "available never".
// Until everyone has submitted the common set is empty and Submitted/Total
// report progress. Members are visited in ascending id order so the result
// is deterministic. With zero members the result is complete and empty by
// convention.
func ComputeIntersection(members []string, availabilities map[string][]Day) Intersection {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sorted = NormalizeMemberIDs(sorted)

	result := Intersection{Total: len(sorted), CommonDays: []Day{}}
	for _, id := range sorted {
		if len(availabilities[id]) > 0 {
			result.Submitted++
		}
	}
	if result.Submitted < result.Total {
		return result
	}
	result.Complete = true
	if result.Total == 0 {
		return result
	}

	common := NormalizeDays(availabilities[sorted[0]])
	for _, id := range sorted[1:] {
		theirs := make(map[Day]struct{}, len(availabilities[id]))
		for _, d := range availabilities[id] {
			theirs[d] = struct{}{}
		}
		kept := common[:0]
		for _, d := range common {
			if _, ok := theirs[d]; ok {
				kept = append(kept, d)
			}
		}
		common = kept
		if len(common) == 0 {
			break
		}
	}
	result.CommonDays = common
	return result
}

// NormalizeMemberIDs deduplicates and sorts member ids ascending, dropping
// empties.
func NormalizeMemberIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
