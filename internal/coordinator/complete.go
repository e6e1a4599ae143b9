package coordinator

import (
	"context"
	"errors"
	"time"

	"dashjoin/internal/history"
	"dashjoin/internal/logging"
	"dashjoin/internal/merge"
	"dashjoin/internal/services"
	"dashjoin/internal/status"
)

// complete applies a worker result.
func (c *Coordinator) complete(ctx context.Context, res merge.Result) {
	job := res.Job
	delete(c.running, job.ID)
	paths := job.Group.Paths()

	switch res.Outcome {
	case merge.OutcomeMerged:
		c.ledger.Remove(paths...)
		c.guard.Record(job.Group.Bounds())
		c.publishOutcome(ctx, status.KindGroupMerged, history.StatusMerged, job, nil, res.Duration())
		for _, err := range res.DeleteErrors {
			evt := status.Event{Kind: status.KindDeleteFailed, JobID: job.ID, Output: job.Output, Error: err.Error()}
			var deleteErr *merge.DeleteError
			if errors.As(err, &deleteErr) {
				evt.Path = deleteErr.Path
			}
			c.publish(evt)
		}
		// Groups deferred behind this merge are eligible now.
		if !c.stopping {
			c.regroup(ctx)
		}
	case merge.OutcomeAbandoned:
		c.ledger.Release(paths...)
		c.publishOutcome(ctx, status.KindMergeAbandoned, history.StatusAbandoned, job, res.Err, res.Duration())
	default:
		c.ledger.Release(paths...)
		err := res.Err
		if err == nil {
			err = errors.New("merge failed without an error")
		}
		c.publishOutcome(ctx, status.KindMergeFailed, history.StatusFailed, job, err, res.Duration())
	}
}

func (c *Coordinator) publishOutcome(ctx context.Context, kind status.Kind, st history.Status, job merge.Job, err error, elapsed time.Duration) {
	evt := status.Event{
		Kind:    kind,
		JobID:   job.ID,
		Paths:   job.Group.Paths(),
		Output:  job.Output,
		Start:   job.Group.Start(),
		End:     job.Group.End(),
		Elapsed: elapsed,
	}
	record := history.Record{
		JobID:   job.ID,
		Status:  st,
		Start:   job.Group.Start(),
		End:     job.Group.End(),
		Sources: job.Group.Paths(),
	}
	if st == history.StatusMerged {
		record.Output = job.Output
	}
	if err != nil {
		evt.Error = err.Error()
		evt.Hint = services.Hint(err)
		record.Error = err.Error()
	}
	c.publish(evt)
	c.record(ctx, record)
}

func (c *Coordinator) publish(evt status.Event) {
	if evt.SessionID == "" {
		evt.SessionID = c.sessionID
	}
	c.sink.Publish(evt)
}

func (c *Coordinator) record(ctx context.Context, record history.Record) {
	if c.recorder == nil {
		return
	}
	record.SessionID = c.sessionID
	if _, err := c.recorder.RecordOutcome(ctx, record); err != nil {
		logging.WarnWithContext(c.logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, record.JobID),
			logging.String("status", string(record.Status)),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "the outcome is missing from dashjoin history"),
		)
	}
}
