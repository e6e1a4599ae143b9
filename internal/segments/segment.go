package segments

import "time"

// Segment is one source media file with its capture time.
type Segment struct {
	Path      string
	Timestamp time.Time
}

// before orders segments by timestamp, then path.
func (s Segment) before(other Segment) bool {
	if s.Timestamp.Equal(other.Timestamp) {
		return s.Path < other.Path
	}
	return s.Timestamp.Before(other.Timestamp)
}

// Range is a closed time interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether r and other share at least one instant. Touching
// endpoints count.
func (r Range) Overlaps(other Range) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Group is a timestamp-ordered run of segments.
type Group struct {
	Segments []Segment
}

// Len returns the number of segments in the group.
func (g Group) Len() int { return len(g.Segments) }

// Start returns the first capture time, or the zero time for an empty group.
func (g Group) Start() time.Time {
	if len(g.Segments) == 0 {
		return time.Time{}
	}
	return g.Segments[0].Timestamp
}

// End returns the last capture time, or the zero time for an empty group.
func (g Group) End() time.Time {
	if len(g.Segments) == 0 {
		return time.Time{}
	}
	return g.Segments[len(g.Segments)-1].Timestamp
}

// Bounds returns [Start, End].
func (g Group) Bounds() Range {
	return Range{Start: g.Start(), End: g.End()}
}

// Paths returns the member paths in ascending timestamp order.
func (g Group) Paths() []string {
	paths := make([]string, len(g.Segments))
	for i, seg := range g.Segments {
		paths[i] = seg.Path
	}
	return paths
}
