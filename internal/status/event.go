package status

import (
	"time"
)

// Kind names an event on the status stream.
type Kind string

const (
	KindSessionStarted   Kind = "session_started"
	KindSessionStopped   Kind = "session_stopped"
	KindSegmentDetected  Kind = "segment_detected"
	KindParseFailed      Kind = "parse_failed"
	KindMergeQueued      Kind = "merge_queued"
	KindGroupMerged      Kind = "group_merged"
	KindMergeFailed      Kind = "merge_failed"
	KindMergeAbandoned   Kind = "merge_abandoned"
	KindDeleteFailed     Kind = "delete_failed"
	KindSegmentDiscarded Kind = "segment_discarded"
)

// IsFailure reports whether the kind signals something an operator should look at.
func (k Kind) IsFailure() bool {
	switch k {
	case KindParseFailed, KindMergeFailed, KindMergeAbandoned, KindDeleteFailed:
		return true
	default:
		return false
	}
}

// Event is one observable state change.
type Event struct {
	Seq       uint64        `json:"seq"`
	Time      time.Time     `json:"ts"`
	Kind      Kind          `json:"kind"`
	SessionID string        `json:"session_id,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
	Path      string        `json:"path,omitempty"`
	Paths     []string      `json:"paths,omitempty"`
	Output    string        `json:"output,omitempty"`
	Start     time.Time     `json:"start,omitzero"`
	End       time.Time     `json:"end,omitzero"`
	Error     string        `json:"error,omitempty"`
	Hint      string        `json:"hint,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
}

// Sink receives published events.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f.
func (f SinkFunc) Publish(evt Event) { f(evt) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
