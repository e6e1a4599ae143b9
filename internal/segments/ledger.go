package segments

import (
	"sort"
	"time"
)

// Ledger is the sorted set of segments awaiting a merge.
type Ledger struct {
	items    []Segment
	paths    map[string]struct{}
	inFlight map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		paths:    make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
	}
}

// Insert adds seg in timestamp order. It returns false when the path is
// already present.
func (l *Ledger) Insert(seg Segment) bool {
	if _, ok := l.paths[seg.Path]; ok {
		return false
	}
	idx := sort.Search(len(l.items), func(i int) bool {
		return seg.before(l.items[i])
	})
	l.items = append(l.items, Segment{})
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = seg
	l.paths[seg.Path] = struct{}{}
	return true
}

// Remove drops the given paths and any in-flight marks on them. It returns
// the number of segments removed.
func (l *Ledger) Remove(paths ...string) int {
	if len(paths) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, ok := l.paths[path]; ok {
			drop[path] = struct{}{}
		}
		delete(l.inFlight, path)
	}
	if len(drop) == 0 {
		return 0
	}
	kept := l.items[:0]
	for _, seg := range l.items {
		if _, ok := drop[seg.Path]; ok {
			delete(l.paths, seg.Path)
			continue
		}
		kept = append(kept, seg)
	}
	for i := len(kept); i < len(l.items); i++ {
		l.items[i] = Segment{}
	}
	l.items = kept
	return len(drop)
}

// Contains reports whether path is in the ledger.
func (l *Ledger) Contains(path string) bool {
	_, ok := l.paths[path]
	return ok
}

// Len returns the number of segments held.
func (l *Ledger) Len() int { return len(l.items) }

// Snapshot returns a copy of the ledger contents in order.
func (l *Ledger) Snapshot() []Segment {
	out := make([]Segment, len(l.items))
	copy(out, l.items)
	return out
}

// MarkInFlight flags paths as belonging to a dispatched merge.
func (l *Ledger) MarkInFlight(paths ...string) {
	for _, path := range paths {
		if _, ok := l.paths[path]; ok {
			l.inFlight[path] = struct{}{}
		}
	}
}

// Release clears in-flight marks so the segments can be grouped again.
func (l *Ledger) Release(paths ...string) {
	for _, path := range paths {
		delete(l.inFlight, path)
	}
}

// InFlight reports whether path belongs to a dispatched merge.
func (l *Ledger) InFlight(path string) bool {
	_, ok := l.inFlight[path]
	return ok
}

// InFlightCount returns the number of segments held by dispatched merges.
func (l *Ledger) InFlightCount() int { return len(l.inFlight) }

// Groups partitions the whole ledger by threshold.
func (l *Ledger) Groups(threshold time.Duration) []Group {
	return Partition(l.items, threshold)
}

// Candidates returns the groups eligible for a merge: at least two members
// and none of them in flight.
func (l *Ledger) Candidates(threshold time.Duration) []Group {
	var out []Group
	for _, group := range l.Groups(threshold) {
		if group.Len() < 2 {
			continue
		}
		if l.anyInFlight(group) {
			continue
		}
		out = append(out, group)
	}
	return out
}

func (l *Ledger) anyInFlight(group Group) bool {
	for _, seg := range group.Segments {
		if l.InFlight(seg.Path) {
			return true
		}
	}
	return false
}
