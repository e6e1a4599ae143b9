package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dashjoin/internal/config"
	"dashjoin/internal/coordinator"
	"dashjoin/internal/history"
	"dashjoin/internal/ingest"
	"dashjoin/internal/logging"
	"dashjoin/internal/media/ffprobe"
	"dashjoin/internal/merge"
	"dashjoin/internal/metrics"
	"dashjoin/internal/notifications"
	"dashjoin/internal/services/ffmpeg"
	"dashjoin/internal/status"
)

const hubCapacity = 1024

var (
	// ErrAlreadyRunning is returned when another session holds the state
	// directory lock.
	ErrAlreadyRunning = errors.New("another dashjoin session is already running")

	errStopRequested = errors.New("stop requested")
)

// Option configures a Session.
type Option func(*Session)

// WithBackend replaces the ffmpeg merge backend.
func WithBackend(backend merge.Backend) Option {
	return func(s *Session) {
		if backend != nil {
			s.backend = backend
		}
	}
}

// WithVerifier replaces the ffprobe output check. It applies even when
// merge.verify_output is off.
func WithVerifier(verifier merge.Verifier) Option {
	return func(s *Session) {
		s.verifier = verifier
	}
}

// WithNotifier replaces the ntfy service built from the config.
func WithNotifier(svc notifications.Service) Option {
	return func(s *Session) {
		if svc != nil {
			s.notifier = svc
		}
	}
}

// WithSessionID uses id instead of a generated one, so the logger and the
// session can share it.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Status is the runtime view served by /api/status.
type Status struct {
	SessionID            string               `json:"session_id"`
	Running              bool                 `json:"running"`
	StartedAt            time.Time            `json:"started_at,omitzero"`
	WatchDir             string               `json:"watch_dir"`
	OutputDir            string               `json:"output_dir"`
	WatchMode            string               `json:"watch_mode,omitempty"`
	ThresholdSeconds     int                  `json:"threshold_seconds"`
	Pattern              string               `json:"pattern"`
	Coordinator          coordinator.Snapshot `json:"coordinator"`
	NotificationsDropped int64                `json:"notifications_dropped"`
}

// Session is one run of the joiner: settings captured at construction, a
// state directory lock, and the goroutines that watch, group, and merge.
// A Session is started at most once.
type Session struct {
	cfg      *config.Config
	settings config.Settings
	logger   *slog.Logger
	id       string

	backend  merge.Backend
	verifier merge.Verifier
	notifier notifications.Service

	lock      *flock.Flock
	pidPath   string
	store     *history.Store
	archive   *status.Archive
	hub       *status.Hub
	metrics   *metrics.Collector
	forwarder *notifications.Forwarder
	coord     *coordinator.Coordinator
	watcher   ingest.Watcher
	api       *apiServer

	startOnce sync.Once
	startedAt time.Time
	cancel    context.CancelCauseFunc
	done      chan struct{}
	err       error
}

// NewSession validates cfg and prepares a session. Configuration errors are
// reported here, before any state is created on disk.
func NewSession(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session requires a config")
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "session"),
		id:       uuid.NewString(),
		notifier: notifications.NewService(cfg),
		done:     make(chan struct{}),
	}
	if cfg.Merge.VerifyOutput {
		s.verifier = ffprobe.Verifier{Binary: cfg.Merge.FFprobeBinary}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.Merge.FFmpegBinary))
	}
	return s, nil
}

// ID returns the session identifier stamped on events and history rows.
func (s *Session) ID() string { return s.id }

// APIAddr returns the address the HTTP API is bound to, or "" when the API
// is disabled or the session has not started.
func (s *Session) APIAddr() string { return s.api.addr() }

// Settings returns the grouping settings captured for this session.
func (s *Session) Settings() config.Settings { return s.settings }

// Start takes the lock, opens history, and launches the session goroutines.
// It returns once the session is running; use Wait to block until it ends.
func (s *Session) Start(ctx context.Context) error {
	err := errors.New("session already started")
	s.startOnce.Do(func() {
		err = s.start(ctx)
		if err != nil {
			s.release()
			s.err = err
			close(s.done)
		}
	})
	return err
}

func (s *Session) start(ctx context.Context) error {
	if err := s.cfg.ValidateWatchDir(); err != nil {
		return err
	}
	if err := s.cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(s.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	s.lock = lock
	if err := writePID(s.cfg.PIDPath()); err != nil {
		return err
	}
	s.pidPath = s.cfg.PIDPath()

	if pruned := logging.CleanupOldLogs(s.logger, s.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     s.cfg.Paths.LogDir,
		Pattern: logging.ArchivePattern,
	}); pruned > 0 {
		s.logger.Info("pruned old logs", logging.Int("count", pruned))
	}

	if s.store, err = history.Open(s.cfg.HistoryPath()); err != nil {
		return err
	}
	if s.archive, err = status.NewArchive(s.cfg.EventsPath()); err != nil {
		return err
	}
	s.metrics = metrics.New()
	s.forwarder = notifications.NewForwarder(s.notifier, s.cfg, s.logger)
	s.hub = status.NewHub(hubCapacity)
	s.hub.AddSink(status.NewLogSink(s.logger))
	s.hub.AddSink(s.archive)
	s.hub.AddSink(s.metrics)
	s.hub.AddSink(s.forwarder)

	pool := merge.NewPool(s.backend,
		merge.WithWorkers(s.cfg.Merge.Workers),
		merge.WithVerifier(s.verifier),
		merge.WithShutdownGrace(time.Duration(s.cfg.Merge.ShutdownGraceSeconds)*time.Second),
		merge.WithLogger(s.logger),
	)
	if s.coord, err = coordinator.New(s.settings, pool,
		coordinator.WithSink(s.hub),
		coordinator.WithRecorder(s.store),
		coordinator.WithLogger(s.logger),
		coordinator.WithSessionID(s.id),
	); err != nil {
		return err
	}

	ready := make(chan struct{})
	if s.watcher, err = ingest.NewWatcher(ingest.WatcherOptions{
		Dir:          s.settings.WatchDir,
		Mode:         s.cfg.Watch.Mode,
		PollInterval: time.Duration(s.cfg.Watch.PollIntervalSeconds) * time.Second,
		Logger:       s.logger,
		OnReady:      func() { close(ready) },
	}); err != nil {
		return err
	}
	monitor := ingest.NewDeviceMonitor(s.cfg.Watch.RescanDevice, s.settings.WatchDir, s.coord, s.logger)

	s.startedAt = time.Now()
	if s.api, err = newAPIServer(s.cfg.Paths.APIBind, s, s.logger); err != nil {
		return err
	}
	if err := s.api.start(); err != nil {
		return err
	}

	if err := s.store.StartSession(ctx, history.Session{
		ID:               s.id,
		StartedAt:        s.startedAt,
		PID:              os.Getpid(),
		WatchDir:         s.settings.WatchDir,
		OutputDir:        s.settings.OutputDir,
		ThresholdSeconds: int(s.settings.Threshold / time.Second),
		Pattern:          s.settings.Pattern(),
		Extension:        s.settings.Extension,
	}); err != nil {
		return err
	}

	// Notifications outlive the session context so session_stopped still
	// goes out after shutdown.
	notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		_ = s.forwarder.Run(notifyCtx)
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return s.coord.Run(gctx) })
	g.Go(func() error {
		if err := s.watcher.Run(gctx, s.coord); err != nil && gctx.Err() == nil {
			return fmt.Errorf("watch %s: %w", s.settings.WatchDir, err)
		}
		return nil
	})
	if s.cfg.Watch.ScanExisting {
		g.Go(func() error {
			select {
			case <-ready:
			case <-gctx.Done():
				return nil
			}
			if _, err := ingest.Scan(gctx, s.settings.WatchDir, s.coord, s.logger); err != nil && gctx.Err() == nil {
				return fmt.Errorf("initial scan: %w", err)
			}
			return nil
		})
	}
	if monitor != nil {
		g.Go(func() error { return monitor.Run(gctx) })
	}

	s.hub.Publish(status.Event{Kind: status.KindSessionStarted, SessionID: s.id, Path: s.settings.WatchDir, Output: s.settings.OutputDir})
	s.logger.Info("session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String("watch_dir", s.settings.WatchDir),
		logging.String("output_dir", s.settings.OutputDir),
		logging.String("watch_mode", s.watcher.Mode()),
		logging.Duration("threshold", s.settings.Threshold),
		logging.String("pattern", s.settings.Pattern()),
		logging.Int("workers", pool.Workers()),
		logging.Bool("scan_existing", s.cfg.Watch.ScanExisting),
	)

	go func() {
		err := g.Wait()
		s.finish(runCtx, err, stopNotify, forwarderDone)
	}()
	return nil
}

// finish runs once every session goroutine has returned.
func (s *Session) finish(runCtx context.Context, err error, stopNotify context.CancelFunc, forwarderDone <-chan struct{}) {
	stoppedAt := time.Now()
	reason := "shutdown"
	switch {
	case err != nil:
		reason = err.Error()
	case errors.Is(context.Cause(runCtx), errStopRequested):
		reason = errStopRequested.Error()
	}

	s.api.stop()
	evt := status.Event{Kind: status.KindSessionStopped, SessionID: s.id, Elapsed: stoppedAt.Sub(s.startedAt)}
	if err != nil {
		evt.Error = err.Error()
	}
	s.hub.Publish(evt)
	stopNotify()
	<-forwarderDone

	if stopErr := s.store.StopSession(context.Background(), s.id, reason, stoppedAt); stopErr != nil {
		logging.WarnWithContext(s.logger, "failed to record session stop", "history_write_failed",
			logging.Error(stopErr),
			logging.String(logging.FieldImpact, "history shows the session as still running"),
		)
	}
	if err != nil {
		logging.ErrorWithContext(s.logger, "session ended with error", "session_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the watch directory and the log above"),
		)
	} else {
		s.logger.Info("session stopped",
			logging.String(logging.FieldEventType, "session_stopped"),
			logging.String("reason", reason),
			logging.Duration("uptime", stoppedAt.Sub(s.startedAt)),
		)
	}
	if dropped := s.forwarder.Dropped(); dropped > 0 {
		logging.WarnWithContext(s.logger, "notifications dropped", "notifications_dropped",
			logging.Int64("count", dropped),
			logging.String(logging.FieldImpact, "some merge notifications were never sent"),
		)
	}

	s.release()
	s.err = err
	close(s.done)
}

// release frees whatever start managed to acquire.
func (s *Session) release() {
	s.api.stop()
	if err := s.archive.Close(); err != nil {
		s.logger.Warn("event archive close failed", logging.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("history close failed", logging.Error(err))
	}
	if s.pidPath != "" {
		_ = os.Remove(s.pidPath)
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release session lock", logging.Error(err))
		}
	}
}

// Stop ends the session and waits for in-flight merges to settle.
func (s *Session) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel(errStopRequested)
	<-s.done
}

// Wait blocks until the session has fully stopped and returns the error that
// ended it, if any.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status reports the session and coordinator state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	out := Status{
		SessionID:        s.id,
		StartedAt:        s.startedAt,
		WatchDir:         s.settings.WatchDir,
		OutputDir:        s.settings.OutputDir,
		ThresholdSeconds: int(s.settings.Threshold / time.Second),
		Pattern:          s.settings.Pattern(),
	}
	if s.watcher != nil {
		out.WatchMode = s.watcher.Mode()
	}
	if s.forwarder != nil {
		out.NotificationsDropped = s.forwarder.Dropped()
	}
	if s.coord == nil {
		return out, nil
	}
	snap, err := s.coord.Snapshot(ctx)
	switch {
	case errors.Is(err, coordinator.ErrStopped):
		return out, nil
	case err != nil:
		return out, err
	}
	out.Running = true
	out.Coordinator = snap
	return out, nil
}
