package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"dashjoin/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := history.Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen should skip applied migrations: %v", err)
	}
	defer second.Close()
	if second.Path() != path {
		t.Fatalf("expected path %q, got %q", path, second.Path())
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	if latest, err := store.LatestSession(ctx); err != nil || latest != nil {
		t.Fatalf("expected no sessions yet, got %v %v", latest, err)
	}

	for i, id := range []string{"older", "newer"} {
		err := store.StartSession(ctx, history.Session{
			ID:               id,
			StartedAt:        started.Add(time.Duration(i) * time.Hour),
			PID:              4242,
			WatchDir:         "/cam",
			OutputDir:        "/out",
			ThresholdSeconds: 90,
			Pattern:          "%Y%m%d_%H%M%S",
			Extension:        ".mp4",
		})
		if err != nil {
			t.Fatalf("StartSession(%s): %v", id, err)
		}
	}

	latest, err := store.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest.ID != "newer" || !latest.Active() || latest.ThresholdSeconds != 90 {
		t.Fatalf("unexpected latest session %+v", latest)
	}

	stopped := started.Add(2 * time.Hour)
	if err := store.StopSession(ctx, "newer", "signal", stopped); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	got, err := store.GetSession(ctx, "newer")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Active() || !got.StoppedAt.Equal(stopped) || got.StopReason != "signal" {
		t.Fatalf("session not stamped as stopped: %+v", got)
	}

	if err := store.StopSession(ctx, "missing", "", time.Time{}); !errors.Is(err, history.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, history.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	sessions, err := store.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "newer" || sessions[1].ID != "older" {
		t.Fatalf("expected newest first, got %+v", sessions)
	}
}

func TestRecordsFilterAndCount(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		if err := store.StartSession(ctx, history.Session{ID: id}); err != nil {
			t.Fatalf("StartSession: %v", err)
		}
	}

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	records := []history.Record{
		{SessionID: "s1", JobID: "j1", Status: history.StatusMerged, Start: start, End: start.Add(80 * time.Second),
			Output: "/out/a__b.mp4", Sources: []string{"/cam/a.mp4", "/cam/b.mp4"}},
		{SessionID: "s1", JobID: "j2", Status: history.StatusFailed, Start: start, End: start.Add(time.Minute),
			Sources: []string{"/cam/c.mp4", "/cam/d.mp4"}, Error: "ffmpeg exited 1"},
		{SessionID: "s1", Status: history.StatusDiscarded, Start: start, End: start.Add(time.Minute)},
		{SessionID: "s2", JobID: "j3", Status: history.StatusMerged, Start: start, End: start.Add(time.Minute)},
	}
	for _, record := range records {
		if _, err := store.RecordOutcome(ctx, record); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	got, err := store.ListRecords(ctx, history.Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 3 || got[0].Status != history.StatusDiscarded {
		t.Fatalf("expected 3 s1 records newest first, got %+v", got)
	}
	if got[2].JobID != "j1" || !reflect.DeepEqual(got[2].Sources, records[0].Sources) {
		t.Fatalf("merged record did not round-trip: %+v", got[2])
	}
	if !got[2].End.Equal(records[0].End) || got[2].CreatedAt.IsZero() {
		t.Fatalf("timestamps did not round-trip: %+v", got[2])
	}
	if got[0].Sources == nil || len(got[0].Sources) != 0 {
		t.Fatalf("expected empty sources slice, got %#v", got[0].Sources)
	}

	failed, err := store.ListRecords(ctx, history.Filter{Statuses: []history.Status{history.StatusFailed}, Limit: 5})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "ffmpeg exited 1" {
		t.Fatalf("unexpected failed records %+v", failed)
	}

	counts, err := store.Counts(ctx, "s1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := map[history.Status]int{history.StatusMerged: 1, history.StatusFailed: 1, history.StatusDiscarded: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("expected %v, got %v", want, counts)
	}
	all, err := store.Counts(ctx, "")
	if err != nil {
		t.Fatalf("Counts all: %v", err)
	}
	if all[history.StatusMerged] != 2 {
		t.Fatalf("expected 2 merged overall, got %v", all)
	}
}

func TestRecordOutcomeRejectsUnknownStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.StartSession(ctx, history.Session{ID: "s1"}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := store.RecordOutcome(ctx, history.Record{SessionID: "s1", Status: "exploded"}); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := history.ParseStatus("  Merged "); !ok || status != history.StatusMerged {
		t.Fatalf("expected merged, got %q %v", status, ok)
	}
	if _, ok := history.ParseStatus("pending"); ok {
		t.Fatal("pending is not a record status")
	}
}
