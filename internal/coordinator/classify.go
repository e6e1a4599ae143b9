package coordinator

import (
	"path/filepath"
	"strings"

	"dashjoin/internal/config"
	"dashjoin/internal/segments"
)

// Verdict says what a discovered path is.
type Verdict int

const (
	// VerdictIgnored covers hidden files, other extensions, and empty paths.
	VerdictIgnored Verdict = iota
	// VerdictOutput is a file named like a merged output.
	VerdictOutput
	// VerdictUnparseable has the right extension but no readable timestamp.
	VerdictUnparseable
	// VerdictSegment is a source segment.
	VerdictSegment
)

// Classify applies the filename rules to path without touching the
// filesystem. The error is set only for VerdictUnparseable.
func Classify(settings config.Settings, path string) (segments.Segment, Verdict, error) {
	if path == "" {
		return segments.Segment{}, VerdictIgnored, nil
	}
	path = filepath.Clean(path)
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return segments.Segment{}, VerdictIgnored, nil
	}
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, settings.Extension) {
		return segments.Segment{}, VerdictIgnored, nil
	}
	stem := strings.TrimSuffix(base, ext)
	if settings.Parser.IsOutputName(stem) {
		return segments.Segment{}, VerdictOutput, nil
	}
	ts, err := settings.Parser.Parse(stem)
	if err != nil {
		return segments.Segment{}, VerdictUnparseable, err
	}
	return segments.Segment{Path: path, Timestamp: ts}, VerdictSegment, nil
}
