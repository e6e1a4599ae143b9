//go:build !linux

package ingest

import "log/slog"

func newInotifyWatcher(string, *slog.Logger, func()) (Watcher, error) {
	return nil, ErrInotifyUnsupported
}
