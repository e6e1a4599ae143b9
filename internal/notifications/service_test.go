package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dashjoin/internal/config"
	"dashjoin/internal/logging"
	"dashjoin/internal/notifications"
	"dashjoin/internal/status"
)

type captured struct {
	title    string
	message  string
	tags     string
	priority string
}

func newNtfyServer(t *testing.T) (*httptest.Server, <-chan captured) {
	t.Helper()
	requests := make(chan captured, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.RequestTimeout = 5
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor(""))
	if err := svc.Publish(context.Background(), notifications.EventGroupMerged, notifications.Payload{"segments": 3}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "group merged",
			event: notifications.EventGroupMerged,
			payload: notifications.Payload{
				"segments": 3,
				"output":   "/merged/20240315_100000__20240315_100120.mp4",
				"span":     "1m20s",
			},
			expectTitle:   "dashjoin - Merged",
			expectMessage: "🎞️ Merged 3 segments: 20240315_100000__20240315_100120.mp4\nSpan: 1m20s",
			expectTags:    "dashjoin,merge,completed",
		},
		{
			name:  "merge failed",
			event: notifications.EventMergeFailed,
			payload: notifications.Payload{
				"segments": 2,
				"error":    "ffmpeg exited 1",
			},
			expectTitle:    "dashjoin - Merge Failed",
			expectMessage:  "❌ Merge of 2 segments failed: ffmpeg exited 1",
			expectTags:     "dashjoin,error,alert",
			expectPriority: "high",
		},
		{
			name:  "delete failed",
			event: notifications.EventDeleteFailed,
			payload: notifications.Payload{
				"path":  "/cam/a.mp4",
				"error": "permission denied",
			},
			expectTitle:   "dashjoin - Source Not Removed",
			expectMessage: "Merged, but could not delete /cam/a.mp4: permission denied",
			expectTags:    "dashjoin,error,cleanup",
		},
		{
			name:           "session stopped",
			event:          notifications.EventSessionStopped,
			payload:        notifications.Payload{"merged": 4, "failed": 1},
			expectTitle:    "dashjoin - Session Stopped",
			expectMessage:  "Session stopped after 4 merges (1 failed)",
			expectTags:     "dashjoin,session,stopped",
			expectPriority: "low",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "dashjoin - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "dashjoin,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, requests := newNtfyServer(t)
			svc := notifications.NewService(configFor(srv.URL))
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			got := <-requests
			if got.title != tc.expectTitle {
				t.Errorf("title: want %q, got %q", tc.expectTitle, got.title)
			}
			if got.message != tc.expectMessage {
				t.Errorf("message: want %q, got %q", tc.expectMessage, got.message)
			}
			if got.tags != tc.expectTags {
				t.Errorf("tags: want %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Errorf("priority: want %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is reserved", http.StatusForbidden)
	}))
	defer srv.Close()

	err := notifications.SendTest(context.Background(), notifications.NewService(configFor(srv.URL)))
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic is reserved") {
		t.Fatalf("expected 403 error with body, got %v", err)
	}
}

func TestUnknownEventIsIgnored(t *testing.T) {
	srv, requests := newNtfyServer(t)
	svc := notifications.NewService(configFor(srv.URL))
	if err := svc.Publish(context.Background(), notifications.Event("mystery"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-requests:
		t.Fatalf("unexpected request %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

type recordingService struct {
	mu     sync.Mutex
	events []notifications.Event
	data   []notifications.Payload
	fail   bool
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.data = append(r.data, payload)
	if r.fail {
		return errors.New("ntfy down")
	}
	return nil
}

func (r *recordingService) snapshot() ([]notifications.Event, []notifications.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...), append([]notifications.Payload(nil), r.data...)
}

func TestForwarderHonoursToggles(t *testing.T) {
	cfg := configFor("")
	cfg.Notifications.Merged = false
	svc := &recordingService{}
	fwd := notifications.NewForwarder(svc, cfg, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Run(ctx) }()

	fwd.Publish(status.Event{Kind: status.KindSessionStarted, Path: "/cam"})
	fwd.Publish(status.Event{Kind: status.KindSegmentDetected, Path: "/cam/a.mp4"})
	fwd.Publish(status.Event{Kind: status.KindGroupMerged, Paths: []string{"a", "b"}, Output: "/out/x.mp4"})
	fwd.Publish(status.Event{Kind: status.KindMergeFailed, Paths: []string{"c", "d"}, Error: "boom"})
	fwd.Publish(status.Event{Kind: status.KindSessionStopped})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	events, data := svc.snapshot()
	want := []notifications.Event{notifications.EventSessionStarted, notifications.EventMergeFailed, notifications.EventSessionStopped}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
	if data[0]["watchDir"] != "/cam" {
		t.Fatalf("expected watch dir in start payload, got %v", data[0])
	}
	stopped := data[2]
	if stopped["merged"] != 1 || stopped["failed"] != 1 {
		t.Fatalf("expected session totals in stop payload, got %v", stopped)
	}
}

func TestForwarderSurvivesDeliveryErrors(t *testing.T) {
	svc := &recordingService{fail: true}
	fwd := notifications.NewForwarder(svc, configFor(""), logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Run(ctx) }()

	fwd.Publish(status.Event{Kind: status.KindMergeFailed, Error: "one"})
	fwd.Publish(status.Event{Kind: status.KindMergeFailed, Error: "two"})
	cancel()
	<-done

	if events, _ := svc.snapshot(); len(events) != 2 {
		t.Fatalf("expected both notifications attempted, got %v", events)
	}
}

func TestForwarderDropsWhenQueueFull(t *testing.T) {
	svc := &recordingService{}
	fwd := notifications.NewForwarder(svc, configFor(""), logging.NewNop())
	for i := 0; i < 100; i++ {
		fwd.Publish(status.Event{Kind: status.KindMergeFailed})
	}
	if fwd.Dropped() == 0 {
		t.Fatal("expected drops without a running forwarder")
	}
}
