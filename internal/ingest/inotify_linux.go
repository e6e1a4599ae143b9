//go:build linux

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	"dashjoin/internal/logging"
)

const (
	inotifyMask    = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_ONLYDIR
	inotifyPollMS  = 250
	inotifyBufSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)
)

var errWatchDirGone = errors.New("watch directory was removed or moved")

// inotifyWatcher reports files once their writer closes them or they are
// renamed into the directory, so half-written segments are never seen.
type inotifyWatcher struct {
	dir    string
	logger *slog.Logger
	ready  func()
}

func newInotifyWatcher(dir string, logger *slog.Logger, ready func()) (Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	_ = unix.Close(fd)
	return &inotifyWatcher{dir: dir, logger: logger, ready: ready}, nil
}

func (w *inotifyWatcher) Mode() string { return ModeInotify }

func (w *inotifyWatcher) Run(ctx context.Context, sink Sink) error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("inotify init: %w", err)
	}
	defer unix.Close(fd)

	if _, err := unix.InotifyAddWatch(fd, w.dir, inotifyMask); err != nil {
		return fmt.Errorf("inotify watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("dir", w.dir),
		logging.String("mode", ModeInotify),
	)
	signalReady(w.ready)

	buf := make([]byte, inotifyBufSize)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.Poll(fds, inotifyPollMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("inotify poll: %w", err)
		}
		if n == 0 {
			continue
		}

		read, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("inotify read: %w", err)
		}
		events, overflow, gone := decodeInotify(buf[:read])
		if overflow {
			logging.WarnWithContext(w.logger, "inotify queue overflowed; rescanning", "watch_overflow",
				logging.String("dir", w.dir),
				logging.String(logging.FieldImpact, "files that arrived during the burst are picked up by the rescan"),
			)
			if _, err := Scan(ctx, w.dir, sink, w.logger); err != nil && ctx.Err() == nil {
				return err
			}
		}
		for _, evt := range events {
			evt.Path = filepath.Join(w.dir, evt.Path)
			if err := sink.Discover(ctx, evt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		if gone {
			return fmt.Errorf("%w: %s", errWatchDirGone, w.dir)
		}
	}
}

// decodeInotify splits a read buffer into events. Event paths are the bare
// names relative to the watched directory.
func decodeInotify(buf []byte) (events []Event, overflow, gone bool) {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		nameEnd := nameStart + int(raw.Len)
		if nameEnd > len(buf) {
			break
		}
		name := string(bytes.TrimRight(buf[nameStart:nameEnd], "\x00"))
		offset = nameEnd

		switch {
		case raw.Mask&unix.IN_Q_OVERFLOW != 0:
			overflow = true
		case raw.Mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_IGNORED) != 0:
			gone = true
		case raw.Mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0 && name != "":
			events = append(events, Event{Path: name, IsDir: raw.Mask&unix.IN_ISDIR != 0})
		}
	}
	return events, overflow, gone
}
