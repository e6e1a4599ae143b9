package merge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"dashjoin/internal/segments"
	"dashjoin/internal/timestamp"
)

var (
	// ErrBackend marks a failure reported by the merge backend.
	ErrBackend = errors.New("merge backend failed")
	// ErrVerify marks merged output that failed verification.
	ErrVerify = errors.New("merged output failed verification")
	// ErrAbandoned marks a merge cut short by shutdown.
	ErrAbandoned = errors.New("merge abandoned")
	// ErrDeleteSource marks a source that could not be removed after a merge.
	ErrDeleteSource = errors.New("delete source segment")
)

// DeleteError reports a source that survived a successful merge.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("%v %s: %v", ErrDeleteSource, e.Path, e.Err)
}

func (e *DeleteError) Unwrap() []error { return []error{ErrDeleteSource, e.Err} }

// Backend concatenates ordered inputs into a single output file.
type Backend interface {
	Merge(ctx context.Context, orderedPaths []string, outputPath string) error
}

// Verifier checks a freshly merged output before sources are deleted.
type Verifier interface {
	Verify(ctx context.Context, outputPath string) error
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, orderedPaths []string, outputPath string) error

// Merge calls f.
func (f BackendFunc) Merge(ctx context.Context, orderedPaths []string, outputPath string) error {
	return f(ctx, orderedPaths, outputPath)
}

// Job is one group handed to a worker.
type Job struct {
	ID     string
	Group  segments.Group
	Output string
}

// NewJob assigns a fresh identifier to a group and its output path.
func NewJob(group segments.Group, output string) Job {
	return Job{ID: uuid.NewString(), Group: group, Output: output}
}

// OutputPath returns the deterministic output location for group.
func OutputPath(dir string, parser *timestamp.Parser, group segments.Group, extension string) string {
	name := parser.OutputName(group.Start(), group.End()) + extension
	return filepath.Join(dir, name)
}

// Outcome classifies a finished job.
type Outcome string

const (
	OutcomeMerged    Outcome = "merged"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Result reports how a job ended.
type Result struct {
	Job          Job
	Outcome      Outcome
	Err          error
	DeleteErrors []error
	Started      time.Time
	Finished     time.Time
}

// Duration returns the wall time the worker spent on the job.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
