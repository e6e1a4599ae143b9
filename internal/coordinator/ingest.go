package coordinator

import (
	"context"
	"path/filepath"

	"dashjoin/internal/history"
	"dashjoin/internal/ingest"
	"dashjoin/internal/logging"
	"dashjoin/internal/merge"
	"dashjoin/internal/segments"
	"dashjoin/internal/status"
)

// ingest applies one discovery. Unusable paths are dropped without state
// changes; unparseable names are remembered so they are rejected once. A
// path that no longer exists is ignored: watch events can trail the merge
// that already consumed the file.
func (c *Coordinator) ingest(ctx context.Context, evt ingest.Event) {
	if evt.IsDir {
		return
	}
	seg, verdict, err := Classify(c.settings, evt.Path)
	switch verdict {
	case VerdictIgnored:
		return
	case VerdictOutput:
		c.logger.Debug("ignoring merged output",
			logging.String(logging.FieldPath, evt.Path),
		)
		return
	}
	path := filepath.Clean(evt.Path)
	if c.ledger.Contains(path) {
		return
	}
	if _, ok := c.rejected[path]; ok {
		return
	}
	if info, statErr := c.stat(path); statErr != nil || info.IsDir() {
		c.logger.Debug("ignoring missing path",
			logging.String(logging.FieldPath, path),
		)
		return
	}
	if verdict == VerdictUnparseable {
		c.rejected[path] = struct{}{}
		c.publish(status.Event{Kind: status.KindParseFailed, Path: path, Error: err.Error()})
		return
	}

	if !c.ledger.Insert(seg) {
		return
	}
	c.publish(status.Event{Kind: status.KindSegmentDetected, Path: path, Start: seg.Timestamp, End: seg.Timestamp})
	c.regroup(ctx)
}

// regroup runs one grouping pass and acts on every eligible group.
func (c *Coordinator) regroup(ctx context.Context) {
	for _, group := range c.ledger.Candidates(c.settings.Threshold) {
		if covered, ok := c.guard.Overlapping(group.Bounds()); ok {
			c.discard(ctx, group, covered)
			continue
		}
		c.dispatch(group)
	}
}

// discard drops a group that intersects an already merged range. The files
// stay on disk; only the ledger forgets them.
func (c *Coordinator) discard(ctx context.Context, group segments.Group, covered segments.Range) {
	paths := group.Paths()
	c.ledger.Remove(paths...)
	for _, seg := range group.Segments {
		c.publish(status.Event{
			Kind:  status.KindSegmentDiscarded,
			Path:  seg.Path,
			Start: covered.Start,
			End:   covered.End,
		})
	}
	c.record(ctx, history.Record{
		Status:  history.StatusDiscarded,
		Start:   group.Start(),
		End:     group.End(),
		Sources: paths,
		Error:   "overlaps merged range " + c.settings.Parser.OutputName(covered.Start, covered.End),
	})
}

func (c *Coordinator) dispatch(group segments.Group) {
	output := merge.OutputPath(c.settings.OutputDir, c.settings.Parser, group, c.settings.Extension)
	job := merge.NewJob(group, output)
	c.ledger.MarkInFlight(group.Paths()...)
	c.queue = append(c.queue, job)
	c.publish(status.Event{
		Kind:   status.KindMergeQueued,
		JobID:  job.ID,
		Paths:  group.Paths(),
		Output: output,
		Start:  group.Start(),
		End:    group.End(),
	})
}
