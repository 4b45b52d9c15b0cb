package stats

import (
	"slices"
	"sort"
)

// Sum rebuilds out's entries from the given records and reports whether
// that changed the record. Parts are processed in ascending name order so
// summing is deterministic regardless of fetch order.
//
// Entries are merged by issue id, never concatenated: an issue touched on
// several days of a window contributes exactly one entry. On a duplicate,
// the LGTM count never decreases and the first measured latency (with its
// review type) wins; a later unknown latency never displaces a known one.
func Sum(out *Record, parts []*Record) bool {
	ordered := make([]*Record, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	var merged []IssueStat
	byIssue := make(map[int64]int)
	for _, p := range ordered {
		for _, e := range p.Entries {
			i, ok := byIssue[e.Issue]
			if !ok {
				byIssue[e.Issue] = len(merged)
				merged = append(merged, e)
				continue
			}
			m := &merged[i]
			if e.LGTMs > m.LGTMs {
				m.LGTMs = e.LGTMs
			}
			if m.Latency < 0 && e.Latency >= 0 {
				m.Latency = e.Latency
				m.Type = e.Type
			}
		}
	}

	changed := !slices.Equal(out.Entries, merged)
	out.Entries = merged
	out.Rescore()
	return changed
}
