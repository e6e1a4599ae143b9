package notifications

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"dashjoin/internal/config"
	"dashjoin/internal/logging"
	"dashjoin/internal/status"
)

const (
	forwarderQueueSize = 64
	drainTimeout       = 5 * time.Second
)

// Forwarder is a status.Sink that turns selected events into notifications.
// Publish never blocks; events beyond the queue are dropped and counted.
type Forwarder struct {
	svc    Service
	merged bool
	errors bool
	logger *slog.Logger
	queue  chan status.Event

	mergedCount atomic.Int64
	failedCount atomic.Int64
	dropped     atomic.Int64
}

// NewForwarder wires svc to the notification toggles in cfg.
func NewForwarder(svc Service, cfg *config.Config, logger *slog.Logger) *Forwarder {
	f := &Forwarder{
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "notifications"),
		queue:  make(chan status.Event, forwarderQueueSize),
	}
	if cfg != nil {
		f.merged = cfg.Notifications.Merged
		f.errors = cfg.Notifications.Errors
	}
	return f
}

// Publish queues evt when it maps to a notification.
func (f *Forwarder) Publish(evt status.Event) {
	switch evt.Kind {
	case status.KindGroupMerged:
		f.mergedCount.Add(1)
	case status.KindMergeFailed:
		f.failedCount.Add(1)
	}
	if _, ok := f.translate(evt); !ok {
		return
	}
	select {
	case f.queue <- evt:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

// Run delivers queued notifications until ctx ends, then flushes whatever is
// still queued within a short deadline.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.flush(context.WithoutCancel(ctx))
			return nil
		case evt := <-f.queue:
			f.deliver(ctx, evt)
		}
	}
}

func (f *Forwarder) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case evt := <-f.queue:
			f.deliver(ctx, evt)
		default:
			return
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, evt status.Event) {
	event, _ := f.translate(evt)
	if err := f.svc.Publish(ctx, event, f.payload(evt)); err != nil {
		logging.WarnWithContext(f.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("notification", string(event)),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
		)
	}
}

func (f *Forwarder) translate(evt status.Event) (Event, bool) {
	switch evt.Kind {
	case status.KindSessionStarted:
		return EventSessionStarted, true
	case status.KindSessionStopped:
		return EventSessionStopped, true
	case status.KindGroupMerged:
		return EventGroupMerged, f.merged
	case status.KindMergeFailed:
		return EventMergeFailed, f.errors
	case status.KindDeleteFailed:
		return EventDeleteFailed, f.errors
	default:
		return "", false
	}
}

func (f *Forwarder) payload(evt status.Event) Payload {
	data := Payload{
		"segments": len(evt.Paths),
		"output":   evt.Output,
		"path":     evt.Path,
		"error":    evt.Error,
	}
	if !evt.Start.IsZero() && !evt.End.IsZero() {
		data["span"] = evt.End.Sub(evt.Start).String()
	}
	switch evt.Kind {
	case status.KindSessionStarted:
		data["watchDir"] = evt.Path
	case status.KindSessionStopped:
		data["merged"] = int(f.mergedCount.Load())
		data["failed"] = int(f.failedCount.Load())
	}
	return data
}
