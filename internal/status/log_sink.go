package status

import (
	"log/slog"

	"dashjoin/internal/logging"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink that logs through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "status")}
}

// Publish logs evt at a level matching its kind.
func (s *LogSink) Publish(evt Event) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(evt.Kind)),
		logging.Int64("seq", int64(evt.Seq)),
	}
	if evt.JobID != "" {
		attrs = append(attrs, logging.String(logging.FieldJobID, evt.JobID))
	}
	if evt.Path != "" {
		attrs = append(attrs, logging.String(logging.FieldPath, evt.Path))
	}
	if len(evt.Paths) > 0 {
		attrs = append(attrs, logging.Int("segments", len(evt.Paths)))
	}
	if evt.Output != "" {
		attrs = append(attrs, logging.String("output", evt.Output))
	}
	if !evt.Start.IsZero() {
		attrs = append(attrs,
			logging.Time("start", evt.Start),
			logging.Time("end", evt.End),
		)
	}
	if evt.Error != "" {
		attrs = append(attrs, logging.String("error", evt.Error))
	}

	msg := describe(evt.Kind)
	switch evt.Kind {
	case KindDeleteFailed:
		logging.WarnWithContext(s.logger, msg, string(evt.Kind), append(attrs,
			logging.String(logging.FieldErrorHint, "remove the source by hand; the merged output already covers it"),
			logging.String(logging.FieldImpact, "an orphaned segment remains in the watch directory"),
		)...)
	case KindMergeFailed:
		logging.WarnWithContext(s.logger, msg, string(evt.Kind), append(attrs,
			logging.String(logging.FieldErrorHint, hintOr(evt, "run ffmpeg by hand on the listed segments to see the full error")),
			logging.String(logging.FieldImpact, "segments stay pending until the next ingestion retries them"),
		)...)
	case KindMergeAbandoned:
		logging.WarnWithContext(s.logger, msg, string(evt.Kind), append(attrs,
			logging.String(logging.FieldImpact, "sources kept; the group merges in a later session"),
		)...)
	case KindParseFailed:
		logging.WarnWithContext(s.logger, msg, string(evt.Kind), append(attrs,
			logging.String(logging.FieldErrorHint, "check grouping.timestamp_pattern against the camera's file names"),
			logging.String(logging.FieldImpact, "file is ignored for the rest of the session"),
		)...)
	case KindSegmentDiscarded:
		logging.WarnWithContext(s.logger, msg, string(evt.Kind), append(attrs,
			logging.String(logging.FieldImpact, "segment is not merged and stays on disk"),
		)...)
	case KindSegmentDetected:
		s.logger.Debug(msg, logging.Args(attrs...)...)
	default:
		s.logger.Info(msg, logging.Args(attrs...)...)
	}
}

func describe(kind Kind) string {
	switch kind {
	case KindSessionStarted:
		return "session started"
	case KindSessionStopped:
		return "session stopped"
	case KindSegmentDetected:
		return "segment detected"
	case KindParseFailed:
		return "filename did not match timestamp pattern"
	case KindMergeQueued:
		return "merge queued"
	case KindGroupMerged:
		return "group merged"
	case KindMergeFailed:
		return "merge failed; sources kept"
	case KindMergeAbandoned:
		return "merge abandoned at shutdown"
	case KindDeleteFailed:
		return "source delete failed after merge"
	case KindSegmentDiscarded:
		return "segment discarded; overlaps a merged range"
	default:
		return string(kind)
	}
}

func hintOr(evt Event, fallback string) string {
	if evt.Hint != "" {
		return evt.Hint
	}
	return fallback
}
