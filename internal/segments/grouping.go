package segments

import "time"

// Partition splits timestamp-sorted segments into maximal runs where every
// adjacent gap is at most threshold. The input is not modified; each group
// owns a fresh slice.
func Partition(sorted []Segment, threshold time.Duration) []Group {
	if len(sorted) == 0 {
		return nil
	}
	var groups []Group
	current := []Segment{sorted[0]}
	for _, seg := range sorted[1:] {
		prev := current[len(current)-1]
		if seg.Timestamp.Sub(prev.Timestamp) <= threshold {
			current = append(current, seg)
			continue
		}
		groups = append(groups, Group{Segments: current})
		current = []Segment{seg}
	}
	return append(groups, Group{Segments: current})
}
