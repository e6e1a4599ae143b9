package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"dashjoin/internal/config"
	"dashjoin/internal/daemon"
	"dashjoin/internal/history"
	"dashjoin/internal/logging"
	"dashjoin/internal/merge"
	"dashjoin/internal/status"
	"dashjoin/internal/testsupport"
)

const waitTimeout = 5 * time.Second

func writingBackend() merge.Backend {
	return merge.BackendFunc(func(_ context.Context, _ []string, out string) error {
		return os.WriteFile(out, []byte("merged"), 0o644)
	})
}

func startSession(t *testing.T, cfg *config.Config, opts ...daemon.Option) *daemon.Session {
	t.Helper()
	opts = append([]daemon.Option{daemon.WithBackend(writingBackend())}, opts...)
	session, err := daemon.NewSession(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(session.Stop)
	return session
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionMergesExistingSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a := filepath.Join(cfg.Paths.WatchDir, "20240315_100000.mp4")
	b := filepath.Join(cfg.Paths.WatchDir, "20240315_100100.mp4")
	testsupport.WriteFile(t, a, 16)
	testsupport.WriteFile(t, b, 16)

	session := startSession(t, cfg, daemon.WithSessionID("session-1"))
	output := filepath.Join(cfg.Paths.OutputDir, "20240315_100000__20240315_100100.mp4")
	waitForFile(t, output)
	session.Stop()
	if err := session.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	for _, path := range []string{a, b} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected source %s removed, stat err %v", path, err)
		}
	}

	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()
	sess, err := store.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Active() || sess.StopReason != "stop requested" || sess.ThresholdSeconds != 90 {
		t.Fatalf("unexpected session row %+v", sess)
	}
	records, err := store.ListRecords(ctx, history.Filter{SessionID: "session-1"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 || records[0].Status != history.StatusMerged || records[0].Output != output {
		t.Fatalf("expected one merged record, got %+v", records)
	}

	events, _, err := status.ReadArchive(cfg.EventsPath(), 0, 0)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected archived events, got %d", len(events))
	}
	if events[0].Kind != status.KindSessionStarted || events[len(events)-1].Kind != status.KindSessionStopped {
		t.Fatalf("expected session_started first and session_stopped last, got %s and %s",
			events[0].Kind, events[len(events)-1].Kind)
	}
}

func TestSecondSessionIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := startSession(t, cfg)

	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil || !held {
		t.Fatalf("expected lock held, got %v %v", held, err)
	}
	if pid, err := daemon.ReadPID(cfg.PIDPath()); err != nil || pid != os.Getpid() {
		t.Fatalf("expected pid file with %d, got %d %v", os.Getpid(), pid, err)
	}

	second, err := daemon.NewSession(cfg, logging.NewNop(), daemon.WithBackend(writingBackend()))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := second.Wait(); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected Wait to report the start error, got %v", err)
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatal("a rejected session must not remove the running session's pid file")
	}

	first.Stop()
	if held, _ := daemon.LockHeld(cfg.LockPath()); held {
		t.Fatal("expected lock released after Stop")
	}
	if _, err := os.Stat(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestNewSessionRejectsBadConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithThreshold(0))
	if _, err := daemon.NewSession(cfg, nil); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := os.Stat(cfg.Paths.StateDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("a rejected config must not create session state")
	}
}

func TestStartRejectsMissingWatchDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.WatchDir = filepath.Join(testsupport.BaseDir(cfg), "absent")
	session, err := daemon.NewSession(cfg, nil, daemon.WithBackend(writingBackend()))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := session.Start(context.Background()); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if held, _ := daemon.LockHeld(cfg.LockPath()); held {
		t.Fatal("lock must not be held after a failed start")
	}
}

func TestSessionEndsWhenWatchDirDisappears(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("inotify reports directory removal on linux only")
	}
	cfg := testsupport.NewConfig(t)
	cfg.Watch.Mode = config.WatchModeInotify
	session := startSession(t, cfg)
	if err := os.RemoveAll(cfg.Paths.WatchDir); err != nil {
		t.Fatalf("remove watch dir: %v", err)
	}
	select {
	case <-session.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session kept running without its watch directory")
	}
	if err := session.Wait(); err == nil {
		t.Fatal("expected the session to report why it stopped")
	}
}

func TestSessionServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIBind("127.0.0.1:0"))
	session := startSession(t, cfg)
	addr := session.APIAddr()
	if addr == "" {
		t.Fatal("expected API address")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var got daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.SessionID != session.ID() || !got.Running || got.WatchDir != cfg.Paths.WatchDir {
		t.Fatalf("unexpected status %+v", got)
	}

	metricsResp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	body, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(body), "dashjoin_session_start_time_seconds") {
		t.Fatalf("expected dashjoin metrics, got:\n%s", body)
	}
}
