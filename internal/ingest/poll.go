package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dashjoin/internal/logging"
)

type fileState struct {
	size     int64
	modTime  time.Time
	reported bool
}

// pollWatcher lists the directory on an interval and reports a file once its
// size and mtime hold still across two polls.
type pollWatcher struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger
	ready    func()
	seen     map[string]*fileState
}

func newPollWatcher(dir string, interval time.Duration, logger *slog.Logger) *pollWatcher {
	return &pollWatcher{dir: dir, interval: interval, logger: logger}
}

func (w *pollWatcher) Mode() string { return ModePoll }

func (w *pollWatcher) Run(ctx context.Context, sink Sink) error {
	if err := w.baseline(); err != nil {
		return err
	}
	w.logger.Info("polling watch directory",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("dir", w.dir),
		logging.Duration("interval", w.interval),
	)
	signalReady(w.ready)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.poll(ctx, sink); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// baseline records what is already present. The startup scan owns those.
func (w *pollWatcher) baseline() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	w.seen = make(map[string]*fileState, len(entries))
	for _, entry := range entries {
		state := &fileState{reported: true}
		if info, err := entry.Info(); err == nil {
			state.size, state.modTime = info.Size(), info.ModTime()
		}
		w.seen[entry.Name()] = state
	}
	return nil
}

func (w *pollWatcher) poll(ctx context.Context, sink Sink) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "watch directory listing failed", "watch_poll_failed",
			logging.Error(err),
			logging.String("dir", w.dir),
			logging.String(logging.FieldErrorHint, "check the directory is mounted and readable"),
		)
		return nil
	}

	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		present[name] = struct{}{}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		state, ok := w.seen[name]
		if !ok {
			state = &fileState{size: info.Size(), modTime: info.ModTime()}
			w.seen[name] = state
			if !entry.IsDir() {
				continue
			}
		}
		if state.reported {
			continue
		}
		if !entry.IsDir() && (state.size != info.Size() || !state.modTime.Equal(info.ModTime())) {
			state.size, state.modTime = info.Size(), info.ModTime()
			continue
		}
		state.reported = true
		evt := Event{Path: filepath.Join(w.dir, name), IsDir: entry.IsDir()}
		if err := sink.Discover(ctx, evt); err != nil {
			return err
		}
	}
	for name := range w.seen {
		if _, ok := present[name]; !ok {
			delete(w.seen, name)
		}
	}
	return nil
}
