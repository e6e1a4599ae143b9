package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dashjoin/internal/logging"
)

// Scan sends every entry of dir to sink in name order. The scan is not
// recursive; subdirectories are reported with IsDir set and left to the sink.
// It returns the number of entries delivered.
func Scan(ctx context.Context, dir string, sink Sink, logger *slog.Logger) (int, error) {
	logger = logging.NewComponentLogger(logger, "scan")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	delivered := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		evt := Event{Path: filepath.Join(dir, entry.Name()), IsDir: entry.IsDir()}
		if err := sink.Discover(ctx, evt); err != nil {
			return delivered, err
		}
		delivered++
	}
	logger.Info("directory scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.String("dir", dir),
		logging.Int("entries", delivered),
	)
	return delivered, nil
}
