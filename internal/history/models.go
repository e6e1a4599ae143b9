package history

import (
	"strings"
	"time"
)

// Status is the terminal state of a history record.
type Status string

const (
	StatusMerged    Status = "merged"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
	StatusDiscarded Status = "discarded"
)

// AllStatuses lists every record status in display order.
func AllStatuses() []Status {
	return []Status{StatusMerged, StatusFailed, StatusAbandoned, StatusDiscarded}
}

// ParseStatus maps a case-insensitive name to a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range AllStatuses() {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Session describes one run of the merge engine.
type Session struct {
	ID               string
	StartedAt        time.Time
	StoppedAt        time.Time
	StopReason       string
	PID              int
	WatchDir         string
	OutputDir        string
	ThresholdSeconds int
	Pattern          string
	Extension        string
}

// Active reports whether the session has not been stamped as stopped.
func (s Session) Active() bool { return s.StoppedAt.IsZero() }

// Record is one audited outcome.
type Record struct {
	ID        int64
	SessionID string
	JobID     string
	Status    Status
	Start     time.Time
	End       time.Time
	Output    string
	Sources   []string
	Error     string
	CreatedAt time.Time
}

// Filter narrows ListRecords.
type Filter struct {
	SessionID string
	Statuses  []Status
	Limit     int
}
