package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"dashjoin/internal/history"
	"dashjoin/internal/testsupport"
)

func TestPlanGroupsSegments(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := env.cfg.Paths.WatchDir
	for _, name := range []string{
		"20240315_100000.mp4",
		"20240315_100100.mp4",
		"20240315_110000.mp4",
		"garbage.mp4",
		"20240314_090000__20240314_090200.mp4",
		"notes.txt",
	} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 8)
	}

	out, _, err := runCLI(t, []string{"plan"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "20240315_100000__20240315_100100.mp4")
	requireContains(t, out, "Waiting for neighbours: 1 single segment(s)")
	requireContains(t, out, "Unparseable name: garbage.mp4")
	requireContains(t, out, "Already merged outputs in directory: 1")

	out, _, err = runCLI(t, []string{"plan", "--json", dir}, env.configPath)
	if err != nil {
		t.Fatalf("plan --json: %v", err)
	}
	var plan mergePlan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(plan.Groups) != 1 || len(plan.Groups[0].Segments) != 2 {
		t.Fatalf("expected one group of two, got %+v", plan.Groups)
	}
	if len(plan.Singles) != 1 || plan.Singles[0] != "20240315_110000.mp4" {
		t.Fatalf("unexpected singles %v", plan.Singles)
	}
	if plan.Ignored != 1 || plan.Outputs != 1 {
		t.Fatalf("expected one ignored file and one output, got %+v", plan)
	}
}

func TestPlanEmptyDirectory(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"plan"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "Nothing to merge")
	requireNotContains(t, out, "Waiting for neighbours")
}

func seedHistory(t *testing.T, env *cliTestEnv) {
	t.Helper()
	store := testsupport.MustOpenHistory(t, env.cfg)
	ctx := context.Background()
	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	if err := store.StartSession(ctx, history.Session{
		ID:               "s-old",
		StartedAt:        start.Add(-time.Hour),
		WatchDir:         env.cfg.Paths.WatchDir,
		ThresholdSeconds: 90,
	}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := store.StopSession(ctx, "s-old", "shutdown", start.Add(-30*time.Minute)); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if err := store.StartSession(ctx, history.Session{
		ID:               "s-new",
		StartedAt:        start,
		WatchDir:         env.cfg.Paths.WatchDir,
		ThresholdSeconds: 90,
	}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	records := []history.Record{
		{SessionID: "s-old", JobID: "j1", Status: history.StatusMerged, Start: start.Add(-time.Hour), End: start.Add(-59 * time.Minute), Output: "/out/old.mp4", Sources: []string{"a", "b"}},
		{SessionID: "s-new", JobID: "j2", Status: history.StatusMerged, Start: start, End: start.Add(time.Minute), Output: "/out/new.mp4", Sources: []string{"c", "d"}},
		{SessionID: "s-new", JobID: "j3", Status: history.StatusFailed, Start: start.Add(time.Hour), End: start.Add(61 * time.Minute), Sources: []string{"e", "f"}, Error: "ffmpeg exited 1"},
	}
	for _, record := range records {
		if _, err := store.RecordOutcome(ctx, record); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close history: %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history without database: %v", err)
	}
	requireContains(t, out, "No history recorded yet")

	seedHistory(t, env)

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "old.mp4")
	requireContains(t, out, "ffmpeg exited 1")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, []string{"history", "--session", "latest", "--status", "merged"}, env.configPath)
	if err != nil {
		t.Fatalf("history --session latest: %v", err)
	}
	requireContains(t, out, "new.mp4")
	requireNotContains(t, out, "old.mp4")
	requireNotContains(t, out, "ffmpeg exited 1")

	out, _, err = runCLI(t, []string{"history", "--sessions"}, env.configPath)
	if err != nil {
		t.Fatalf("history --sessions: %v", err)
	}
	requireContains(t, out, "s-old")
	requireContains(t, out, "shutdown")
	requireContains(t, out, "active")

	if _, _, err := runCLI(t, []string{"history", "--status", "exploded"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestStatusCommandNotRunning(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "No sessions recorded")

	seedHistory(t, env)
	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "s-new")
	requireContains(t, out, "Ended without recording a stop")
	requireContains(t, out, "1 merged, 1 failed")
}

func TestStopWhenNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "dashjoin is not running")
}

func TestRunRejectsInvalidThreshold(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run", "--threshold", "0"}, env.configPath); err == nil {
		t.Fatal("expected run to reject a zero threshold")
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}
