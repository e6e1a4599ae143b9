package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dashjoin/internal/logging"
)

// Watch modes accepted by NewWatcher.
const (
	ModeAuto    = "auto"
	ModeInotify = "inotify"
	ModePoll    = "poll"
)

const defaultPollInterval = 5 * time.Second

// ErrInotifyUnsupported is returned when inotify is requested on a platform
// without it.
var ErrInotifyUnsupported = errors.New("inotify is not available on this platform")

// Watcher reports files arriving in a directory until ctx ends.
type Watcher interface {
	Run(ctx context.Context, sink Sink) error
	Mode() string
}

// WatcherOptions configures NewWatcher.
type WatcherOptions struct {
	Dir          string
	Mode         string
	PollInterval time.Duration
	Logger       *slog.Logger
	// OnReady is called once the watch is established and before any
	// event is reported.
	OnReady func()
}

// NewWatcher selects a watch implementation for opts.Mode. Auto prefers
// inotify and falls back to polling.
func NewWatcher(opts WatcherOptions) (Watcher, error) {
	if opts.Dir == "" {
		return nil, errors.New("watcher requires a directory")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	logger := logging.NewComponentLogger(opts.Logger, "watcher")

	poll := func() Watcher {
		w := newPollWatcher(opts.Dir, opts.PollInterval, logger)
		w.ready = opts.OnReady
		return w
	}

	switch opts.Mode {
	case ModePoll:
		return poll(), nil
	case ModeInotify:
		return newInotifyWatcher(opts.Dir, logger, opts.OnReady)
	case ModeAuto, "":
		w, err := newInotifyWatcher(opts.Dir, logger, opts.OnReady)
		if err == nil {
			return w, nil
		}
		logging.WarnWithContext(logger, "inotify unavailable; polling the watch directory", "watch_fallback_poll",
			logging.Error(err),
			logging.Duration("interval", opts.PollInterval),
			logging.String(logging.FieldImpact, "new segments are noticed up to two poll intervals late"),
		)
		return poll(), nil
	default:
		return nil, fmt.Errorf("unknown watch mode %q", opts.Mode)
	}
}

func signalReady(fn func()) {
	if fn != nil {
		fn()
	}
}
