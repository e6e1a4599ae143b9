package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"dashjoin/internal/config"
	"dashjoin/internal/history"
	"dashjoin/internal/ingest"
	"dashjoin/internal/logging"
	"dashjoin/internal/merge"
	"dashjoin/internal/segments"
	"dashjoin/internal/status"
)

const defaultInboxSize = 64

// ErrStopped is returned by Discover and Snapshot once Run has stopped
// accepting messages.
var ErrStopped = errors.New("coordinator stopped")

// Dispatcher is the worker side of the coordinator: jobs go in, one result
// per accepted job comes back, and Results is closed when the workers exit.
type Dispatcher interface {
	Jobs() chan<- merge.Job
	Results() <-chan merge.Result
}

// Recorder persists terminal outcomes.
type Recorder interface {
	RecordOutcome(ctx context.Context, record history.Record) (int64, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSink routes status events to sink.
func WithSink(sink status.Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithRecorder writes every outcome to recorder.
func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = recorder
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logging.NewComponentLogger(logger, "coordinator")
	}
}

// WithSessionID stamps events and records with id.
func WithSessionID(id string) Option {
	return func(c *Coordinator) {
		c.sessionID = id
	}
}

// WithInboxSize sets how many discoveries may wait for the loop.
func WithInboxSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.inboxSize = n
		}
	}
}

// Snapshot is a point-in-time view of coordinator state.
type Snapshot struct {
	SessionID    string `json:"session_id"`
	Pending      int    `json:"pending"`
	InFlight     int    `json:"in_flight"`
	QueuedJobs   int    `json:"queued_jobs"`
	RunningJobs  int    `json:"running_jobs"`
	MergedRanges int    `json:"merged_ranges"`
	Rejected     int    `json:"rejected"`
}

// message is one inbox entry: a discovery or a snapshot request.
type message struct {
	event    ingest.Event
	snapshot chan Snapshot
}

// Coordinator serializes all ledger and guard mutations.
type Coordinator struct {
	settings   config.Settings
	dispatcher Dispatcher
	sink       status.Sink
	recorder   Recorder
	logger     *slog.Logger
	sessionID  string
	inboxSize  int
	stat       func(string) (os.FileInfo, error)

	inbox  chan message
	closed chan struct{}

	// Owned by the Run goroutine.
	ledger   *segments.Ledger
	guard    *segments.Guard
	rejected map[string]struct{}
	queue    []merge.Job
	running  map[string]merge.Job
	stopping bool
}

// New builds a coordinator for one session.
func New(settings config.Settings, dispatcher Dispatcher, opts ...Option) (*Coordinator, error) {
	if settings.Parser == nil {
		return nil, errors.New("coordinator requires a timestamp parser")
	}
	if settings.Threshold <= 0 {
		return nil, errors.New("coordinator requires a positive threshold")
	}
	if dispatcher == nil {
		return nil, errors.New("coordinator requires a dispatcher")
	}
	c := &Coordinator{
		settings:   settings,
		dispatcher: dispatcher,
		sink:       status.Discard,
		logger:     logging.NewComponentLogger(nil, "coordinator"),
		inboxSize:  defaultInboxSize,
		stat:       os.Stat,
		closed:     make(chan struct{}),
		ledger:     segments.NewLedger(),
		guard:      segments.NewGuard(),
		rejected:   make(map[string]struct{}),
		running:    make(map[string]merge.Job),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.inbox = make(chan message, c.inboxSize)
	return c, nil
}

// Discover hands a path to the coordinator. It satisfies ingest.Sink.
func (c *Coordinator) Discover(ctx context.Context, evt ingest.Event) error {
	select {
	case <-c.closed:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- message{event: evt}:
		return nil
	case <-c.closed:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot asks the loop for its current counts. Discoveries accepted before
// the call are reflected in the result.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case c.inbox <- message{snapshot: reply}:
	case <-c.closed:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-c.closed:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run processes messages until ctx ends, then settles every outstanding job
// and returns once the dispatcher has closed its results. Run must be called
// at most once.
func (c *Coordinator) Run(ctx context.Context) error {
	results := c.dispatcher.Results()
	for {
		var (
			jobs chan<- merge.Job
			next merge.Job
		)
		if len(c.queue) > 0 && results != nil {
			jobs = c.dispatcher.Jobs()
			next = c.queue[0]
		}

		select {
		case <-ctx.Done():
			c.shutdown(context.WithoutCancel(ctx), results)
			return nil
		case msg := <-c.inbox:
			if msg.snapshot != nil {
				msg.snapshot <- c.snapshot()
				continue
			}
			c.ingest(ctx, msg.event)
		case jobs <- next:
			c.queue[0] = merge.Job{}
			c.queue = c.queue[1:]
			c.running[next.ID] = next
		case res, ok := <-results:
			if !ok {
				logging.WarnWithContext(c.logger, "merge workers exited before the session ended", "dispatcher_closed",
					logging.Int("queued_jobs", len(c.queue)),
					logging.String(logging.FieldImpact, "queued groups will not merge in this session"),
				)
				results = nil
				continue
			}
			c.complete(ctx, res)
		}
	}
}

func (c *Coordinator) snapshot() Snapshot {
	return Snapshot{
		SessionID:    c.sessionID,
		Pending:      c.ledger.Len() - c.ledger.InFlightCount(),
		InFlight:     c.ledger.InFlightCount(),
		QueuedJobs:   len(c.queue),
		RunningJobs:  len(c.running),
		MergedRanges: c.guard.Len(),
		Rejected:     len(c.rejected),
	}
}

// shutdown abandons queued work and waits for running jobs to report.
func (c *Coordinator) shutdown(ctx context.Context, results <-chan merge.Result) {
	close(c.closed)
	c.stopping = true
	for _, job := range c.queue {
		c.ledger.Release(job.Group.Paths()...)
		c.publishOutcome(ctx, status.KindMergeAbandoned, history.StatusAbandoned, job, merge.ErrAbandoned, 0)
	}
	c.queue = nil

	if results != nil {
		for res := range results {
			c.complete(ctx, res)
		}
	}
	c.logger.Info("coordinator stopped",
		logging.String(logging.FieldEventType, "coordinator_stopped"),
		logging.Int("pending", c.ledger.Len()),
		logging.Int("merged_ranges", c.guard.Len()),
	)
}
