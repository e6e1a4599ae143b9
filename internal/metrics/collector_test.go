package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dashjoin/internal/metrics"
	"dashjoin/internal/status"
)

func gathered(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range m.GetLabel() {
				key += "{" + label.GetName() + "=" + label.GetValue() + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollectorTracksLifecycle(t *testing.T) {
	c := metrics.New()
	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	c.Publish(status.Event{Kind: status.KindSessionStarted, Time: start})
	c.Publish(status.Event{Kind: status.KindSegmentDetected})
	c.Publish(status.Event{Kind: status.KindSegmentDetected})
	c.Publish(status.Event{Kind: status.KindParseFailed})
	c.Publish(status.Event{Kind: status.KindMergeQueued})
	c.Publish(status.Event{Kind: status.KindMergeQueued})
	c.Publish(status.Event{Kind: status.KindMergeQueued})
	c.Publish(status.Event{Kind: status.KindGroupMerged, Start: start, End: start.Add(80 * time.Second), Elapsed: 2 * time.Second})
	c.Publish(status.Event{Kind: status.KindMergeFailed, Elapsed: time.Second})
	c.Publish(status.Event{Kind: status.KindDeleteFailed})
	c.Publish(status.Event{Kind: status.KindSegmentDiscarded})

	got := gathered(t, c.Registry())
	want := map[string]float64{
		"dashjoin_segments_detected_total":         2,
		"dashjoin_parse_failures_total":            1,
		"dashjoin_segments_discarded_total":        1,
		"dashjoin_delete_failures_total":           1,
		"dashjoin_merges_total{outcome=merged}":    1,
		"dashjoin_merges_total{outcome=failed}":    1,
		"dashjoin_merges_total{outcome=abandoned}": 0,
		"dashjoin_merges_in_flight":                1,
		"dashjoin_merge_duration_seconds":          2,
		"dashjoin_merged_span_seconds":             1,
		"dashjoin_session_start_time_seconds":      float64(start.Unix()),
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("%s: want %v, got %v", key, value, got[key])
		}
	}
	if _, ok := got["go_goroutines"]; !ok {
		t.Error("expected Go runtime collector registered")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := metrics.New()
	c.Publish(status.Event{Kind: status.KindSegmentDetected})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "dashjoin_segments_detected_total 1") {
		t.Fatalf("expected counter in exposition, got:\n%s", body)
	}
}
