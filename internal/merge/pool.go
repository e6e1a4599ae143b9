package merge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"dashjoin/internal/logging"
	"dashjoin/internal/services"
)

const defaultWorkers = 2

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent merges.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithVerifier checks every output before sources are deleted.
func WithVerifier(v Verifier) Option {
	return func(p *Pool) {
		p.verifier = v
	}
}

// WithShutdownGrace lets in-flight merges run for d after the pool context
// ends before their backend context is cancelled.
func WithShutdownGrace(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logging.NewComponentLogger(logger, "merge-pool")
	}
}

// WithRemover overrides how files are deleted.
func WithRemover(remove func(string) error) Option {
	return func(p *Pool) {
		if remove != nil {
			p.remove = remove
		}
	}
}

// Pool is a fixed set of merge workers fed through Jobs.
type Pool struct {
	backend  Backend
	verifier Verifier
	workers  int
	grace    time.Duration
	logger   *slog.Logger
	remove   func(string) error

	jobs    chan Job
	results chan Result
}

// NewPool builds a pool around backend.
func NewPool(backend Backend, opts ...Option) *Pool {
	p := &Pool{
		backend: backend,
		workers: defaultWorkers,
		logger:  logging.NewComponentLogger(nil, "merge-pool"),
		remove:  os.Remove,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.jobs = make(chan Job)
	// One slot per worker: after the consumer stops reading, each worker can
	// still hand over its last result without blocking.
	p.results = make(chan Result, p.workers)
	return p
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int { return p.workers }

// Jobs accepts work. A send blocks until a worker is idle.
func (p *Pool) Jobs() chan<- Job { return p.jobs }

// Results delivers one Result per accepted job. It is closed when Run returns.
func (p *Pool) Results() <-chan Result { return p.results }

// Run starts the workers and blocks until ctx ends and every in-flight merge
// has finished or been abandoned. Run must be called at most once.
func (p *Pool) Run(ctx context.Context) error {
	if p.backend == nil {
		close(p.results)
		return errors.New("merge pool requires a backend")
	}

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		if p.grace > 0 {
			timer := time.NewTimer(p.grace)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-stop:
				return
			}
		}
		cancelWork()
	}()

	var g errgroup.Group
	for i := 0; i < p.workers; i++ {
		worker := i + 1
		g.Go(func() error {
			p.work(ctx, workCtx, worker)
			return nil
		})
	}
	err := g.Wait()
	close(stop)
	close(p.results)
	return err
}

func (p *Pool) work(ctx, workCtx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.results <- p.execute(workCtx, worker, job)
		}
	}
}

func (p *Pool) execute(ctx context.Context, worker int, job Job) (res Result) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, p.logger).With(logging.Int("worker", worker))
	res = Result{Job: job, Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	paths := job.Group.Paths()
	logger.Info("merge started",
		logging.String(logging.FieldEventType, "merge_started"),
		logging.Int("segments", len(paths)),
		logging.String("output", job.Output),
	)

	if err := p.backend.Merge(ctx, paths, job.Output); err != nil {
		res.Outcome, res.Err = p.classify(ctx, ErrBackend, err)
		return res
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(ctx, job.Output); err != nil {
			if rmErr := p.remove(job.Output); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				logging.WarnWithContext(logger, "unverified output left on disk", "merge_output_cleanup_failed",
					logging.String("output", job.Output),
					logging.Error(rmErr),
					logging.String(logging.FieldErrorHint, "remove the file by hand before re-running the session"),
					logging.String(logging.FieldImpact, "a damaged merged file remains next to the sources"),
				)
			}
			res.Outcome, res.Err = p.classify(ctx, ErrVerify, err)
			return res
		}
	}

	for _, path := range paths {
		if err := p.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.DeleteErrors = append(res.DeleteErrors, &DeleteError{Path: path, Err: err})
		}
	}
	res.Outcome = OutcomeMerged
	logger.Info("merge finished",
		logging.String(logging.FieldEventType, "merge_finished"),
		logging.String("output", job.Output),
		logging.Duration("elapsed", time.Since(res.Started)),
		logging.Int("delete_failures", len(res.DeleteErrors)),
	)
	return res
}

func (p *Pool) classify(ctx context.Context, marker, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeAbandoned, fmt.Errorf("%w: %w", ErrAbandoned, err)
	}
	return OutcomeFailed, fmt.Errorf("%w: %w", marker, err)
}
