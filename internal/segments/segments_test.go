package segments

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var base = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func at(hms string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", "2024-03-15 "+hms)
	if err != nil {
		panic(err)
	}
	return t
}

func seg(hms string) Segment {
	return Segment{Path: "/cam/" + hms + ".mp4", Timestamp: at(hms)}
}

func stamps(groups []Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		for _, s := range g.Segments {
			out[i] = append(out[i], s.Timestamp.Format("15:04:05"))
		}
	}
	return out
}

func TestPartitionExample(t *testing.T) {
	ledger := NewLedger()
	for _, hms := range []string{"10:10:00", "10:01:00", "10:00:00", "10:01:20"} {
		ledger.Insert(seg(hms))
	}
	got := stamps(ledger.Groups(90 * time.Second))
	want := [][]string{{"10:00:00", "10:01:00", "10:01:20"}, {"10:10:00"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPartitionThresholdIsInclusive(t *testing.T) {
	segs := []Segment{seg("10:00:00"), seg("10:01:30"), seg("10:03:01")}
	got := stamps(Partition(segs, 90*time.Second))
	want := [][]string{{"10:00:00", "10:01:30"}, {"10:03:01"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPartitionEmpty(t *testing.T) {
	if groups := Partition(nil, time.Minute); groups != nil {
		t.Fatalf("expected no groups, got %v", groups)
	}
}

func TestPartitionProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		threshold := time.Duration(1+rng.Intn(120)) * time.Second
		ledger := NewLedger()
		n := rng.Intn(30)
		for i := 0; i < n; i++ {
			offset := time.Duration(rng.Intn(3600)) * time.Second
			ledger.Insert(Segment{Path: fmt.Sprintf("/cam/%03d.mp4", i), Timestamp: base.Add(offset)})
		}

		groups := ledger.Groups(threshold)
		if again := ledger.Groups(threshold); !reflect.DeepEqual(groups, again) {
			t.Fatalf("trial %d: grouping is not idempotent", trial)
		}

		var flattened []Segment
		for gi, g := range groups {
			if g.Len() == 0 {
				t.Fatalf("trial %d: empty group", trial)
			}
			for i := 1; i < g.Len(); i++ {
				if gap := g.Segments[i].Timestamp.Sub(g.Segments[i-1].Timestamp); gap > threshold {
					t.Fatalf("trial %d: gap %v inside group exceeds %v", trial, gap, threshold)
				}
			}
			if gi > 0 {
				prev := groups[gi-1]
				if gap := g.Start().Sub(prev.End()); gap <= threshold {
					t.Fatalf("trial %d: groups %d and %d should have been joined (gap %v)", trial, gi-1, gi, gap)
				}
			}
			flattened = append(flattened, g.Segments...)
		}
		if !reflect.DeepEqual(flattened, ledger.Snapshot()) && !(len(flattened) == 0 && ledger.Len() == 0) {
			t.Fatalf("trial %d: groups do not partition the ledger", trial)
		}
	}
}

func TestLedgerInsertKeepsOrderAndRejectsDuplicates(t *testing.T) {
	ledger := NewLedger()
	if !ledger.Insert(seg("10:05:00")) {
		t.Fatal("first insert should succeed")
	}
	ledger.Insert(seg("10:00:00"))
	ledger.Insert(seg("10:02:00"))
	if ledger.Insert(seg("10:02:00")) {
		t.Fatal("duplicate path should be rejected")
	}
	var got []string
	for _, s := range ledger.Snapshot() {
		got = append(got, s.Timestamp.Format("15:04:05"))
	}
	want := []string{"10:00:00", "10:02:00", "10:05:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLedgerEqualTimestampsOrderByPath(t *testing.T) {
	ledger := NewLedger()
	ledger.Insert(Segment{Path: "/cam/b.mp4", Timestamp: base})
	ledger.Insert(Segment{Path: "/cam/a.mp4", Timestamp: base})
	snap := ledger.Snapshot()
	if snap[0].Path != "/cam/a.mp4" || snap[1].Path != "/cam/b.mp4" {
		t.Fatalf("unexpected order: %v", snap)
	}
}

func TestLedgerRemove(t *testing.T) {
	ledger := NewLedger()
	a, b, c := seg("10:00:00"), seg("10:01:00"), seg("10:02:00")
	ledger.Insert(a)
	ledger.Insert(b)
	ledger.Insert(c)
	ledger.MarkInFlight(a.Path, b.Path)

	if removed := ledger.Remove(a.Path, b.Path, "/cam/missing.mp4"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if ledger.Contains(a.Path) || ledger.Contains(b.Path) || !ledger.Contains(c.Path) {
		t.Fatalf("unexpected ledger contents: %v", ledger.Snapshot())
	}
	if ledger.InFlightCount() != 0 {
		t.Fatalf("expected in-flight marks cleared, got %d", ledger.InFlightCount())
	}
	if !ledger.Insert(a) {
		t.Fatal("removed path should be insertable again")
	}
}

func TestCandidatesSkipSingletonsAndInFlight(t *testing.T) {
	ledger := NewLedger()
	for _, hms := range []string{"10:00:00", "10:01:00", "10:10:00", "10:20:00", "10:20:30"} {
		ledger.Insert(seg(hms))
	}
	threshold := 90 * time.Second

	got := stamps(ledger.Candidates(threshold))
	want := [][]string{{"10:00:00", "10:01:00"}, {"10:20:00", "10:20:30"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	ledger.MarkInFlight(seg("10:00:00").Path, seg("10:01:00").Path)
	ledger.Insert(seg("10:02:00"))
	got = stamps(ledger.Candidates(threshold))
	want = [][]string{{"10:20:00", "10:20:30"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected in-flight run deferred, got %v", got)
	}

	ledger.Release(seg("10:00:00").Path, seg("10:01:00").Path)
	got = stamps(ledger.Candidates(threshold))
	want = [][]string{{"10:00:00", "10:01:00", "10:02:00"}, {"10:20:00", "10:20:30"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected released run to regroup, got %v", got)
	}
}

func TestMarkInFlightIgnoresUnknownPaths(t *testing.T) {
	ledger := NewLedger()
	ledger.MarkInFlight("/cam/unknown.mp4")
	if ledger.InFlightCount() != 0 {
		t.Fatal("unknown paths must not be marked")
	}
}

func TestGuardOverlap(t *testing.T) {
	guard := NewGuard()
	merged := Range{Start: at("10:00:00"), End: at("10:01:20")}
	guard.Record(merged)

	cases := []struct {
		name    string
		r       Range
		overlap bool
	}{
		{"inside", Range{Start: at("10:00:30"), End: at("10:01:00")}, true},
		{"touching end", Range{Start: at("10:01:20"), End: at("10:02:00")}, true},
		{"touching start", Range{Start: at("09:59:00"), End: at("10:00:00")}, true},
		{"covering", Range{Start: at("09:00:00"), End: at("11:00:00")}, true},
		{"after", Range{Start: at("10:01:21"), End: at("10:02:00")}, false},
		{"before", Range{Start: at("09:58:00"), End: at("09:59:59")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := guard.Overlapping(tc.r)
			if ok != tc.overlap {
				t.Fatalf("expected overlap=%v, got %v", tc.overlap, ok)
			}
			if ok && got != merged {
				t.Fatalf("expected matching range %v, got %v", merged, got)
			}
		})
	}
}

func TestGuardNeverCoalesces(t *testing.T) {
	guard := NewGuard()
	guard.Record(Range{Start: at("10:00:00"), End: at("10:01:00")})
	guard.Record(Range{Start: at("10:01:00"), End: at("10:02:00")})
	if guard.Len() != 2 {
		t.Fatalf("expected 2 ranges, got %d", guard.Len())
	}
	ranges := guard.Ranges()
	ranges[0] = Range{}
	if guard.Ranges()[0].Start.IsZero() {
		t.Fatal("Ranges must return a copy")
	}
}

func TestGroupAccessors(t *testing.T) {
	g := Group{Segments: []Segment{seg("10:00:00"), seg("10:01:00")}}
	if g.Bounds() != (Range{Start: at("10:00:00"), End: at("10:01:00")}) {
		t.Fatalf("unexpected bounds %v", g.Bounds())
	}
	if got := g.Paths(); !reflect.DeepEqual(got, []string{"/cam/10:00:00.mp4", "/cam/10:01:00.mp4"}) {
		t.Fatalf("unexpected paths %v", got)
	}
	if !(Group{}).Start().IsZero() || !(Group{}).End().IsZero() {
		t.Fatal("empty group bounds should be zero")
	}
}
