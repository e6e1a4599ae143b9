package status

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewLogSink(logger)

	sink.Publish(Event{Kind: KindSegmentDetected, Path: "/cam/a.mp4"})
	if buf.Len() != 0 {
		t.Fatalf("segment detection should log at debug, got %s", buf.String())
	}

	sink.Publish(Event{Kind: KindDeleteFailed, Path: "/cam/a.mp4", Error: "permission denied"})
	line := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"event_type":"delete_failed"`, `"error_hint"`, `"impact"`, `"component":"status"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}

	buf.Reset()
	sink.Publish(Event{Kind: KindGroupMerged, Output: "/out/x.mp4", Paths: []string{"a", "b"}})
	if !strings.Contains(buf.String(), `"level":"INFO"`) || !strings.Contains(buf.String(), `"segments":2`) {
		t.Fatalf("unexpected merged line %s", buf.String())
	}
}

func TestLogSinkPrefersEventHint(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Publish(Event{Kind: KindMergeFailed, Error: "ffprobe: verify: no video stream", Hint: "inspect the input file"})
	if !strings.Contains(buf.String(), `"error_hint":"inspect the input file"`) {
		t.Fatalf("expected event hint, got %s", buf.String())
	}

	buf.Reset()
	sink.Publish(Event{Kind: KindMergeFailed, Error: "boom"})
	if !strings.Contains(buf.String(), `"error_hint":"run ffmpeg by hand`) {
		t.Fatalf("expected fallback hint, got %s", buf.String())
	}
}
