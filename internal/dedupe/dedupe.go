// Package dedupe collapses records describing the same item into the most
// informative version.
package dedupe

import "github.com/JakeFAU/equipment-crawler/internal/equipment"

// Records groups by DedupKey and keeps one record per group. A record
// replaces the current survivor only when it has strictly more populated
// fields, or the same count and a longer description. Output follows the
// order in which each key was first seen. The input is not modified.
func Records(in []equipment.Record) []equipment.Record {
	index := make(map[string]int, len(in))
	out := make([]equipment.Record, 0, len(in))
	for _, rec := range in {
		key := rec.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, rec.Clone())
			continue
		}
		if better(rec, out[i]) {
			out[i] = rec.Clone()
		}
	}
	return out
}

func better(candidate, current equipment.Record) bool {
	cn, cur := candidate.PopulatedFields(), current.PopulatedFields()
	if cn != cur {
		return cn > cur
	}
	return len(candidate.Description) > len(current.Description)
}
