package segments

// Guard records the ranges already produced as merged output.
type Guard struct {
	ranges []Range
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Record appends r. Ranges are never coalesced or removed.
func (g *Guard) Record(r Range) {
	g.ranges = append(g.ranges, r)
}

// Overlapping returns the first recorded range that intersects r.
func (g *Guard) Overlapping(r Range) (Range, bool) {
	for _, existing := range g.ranges {
		if existing.Overlaps(r) {
			return existing, true
		}
	}
	return Range{}, false
}

// Len returns the number of recorded ranges.
func (g *Guard) Len() int { return len(g.ranges) }

// Ranges returns a copy of the recorded ranges in insertion order.
func (g *Guard) Ranges() []Range {
	out := make([]Range, len(g.ranges))
	copy(out, g.ranges)
	return out
}
