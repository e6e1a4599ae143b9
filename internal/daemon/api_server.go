package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dashjoin/internal/logging"
	"dashjoin/internal/services"
	"dashjoin/internal/status"
)

const (
	defaultEventLimit = 200
	maxEventWait      = 30 * time.Second
)

type eventsResponse struct {
	Events []status.Event `json:"events"`
	Next   uint64         `json:"next"`
}

type apiServer struct {
	bind    string
	logger  *slog.Logger
	session *Session

	listener   net.Listener
	server     *http.Server
	cancelBase context.CancelFunc
}

func newAPIServer(bind string, s *Session, logger *slog.Logger) (*apiServer, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" || s == nil {
		return nil, nil
	}

	srv := &apiServer{
		bind:    bind,
		logger:  logging.NewComponentLogger(logger, "api-server"),
		session: s,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/events", srv.handleEvents)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	srv.cancelBase = cancel
	srv.server = &http.Server{
		Handler:           withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      maxEventWait + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return srv, nil
}

func (s *apiServer) start() error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// addr returns the bound address, or "" before start.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	// Wake long-polling /api/events requests so Shutdown does not wait on them.
	s.cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := s.session.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.session.hub
	archive := s.session.archive

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultEventLimit
	}
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")

	var (
		events []status.Event
		next   uint64
	)
	// Events that rolled out of the hub are replayed from the archive.
	if archive != nil && since > 0 && since+1 < hub.FirstSequence() {
		archived, cursor, err := archive.ReadSince(since, limit)
		if err != nil {
			logging.WithContext(r.Context(), s.logger).Warn("event archive read failed", logging.Error(err))
		} else if len(archived) > 0 {
			events, next = archived, cursor
		}
	}

	switch {
	case len(events) > 0:
	case tail && since == 0:
		events, next = hub.Tail(limit)
	default:
		ctx, cancel := context.WithTimeout(r.Context(), maxEventWait)
		defer cancel()
		fetched, cursor, err := hub.Fetch(ctx, since, limit, wait)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		events, next = fetched, cursor
	}
	if events == nil {
		events = []status.Event{}
	}
	s.writeJSON(w, http.StatusOK, eventsResponse{Events: events, Next: next})
}

// withRequestID tags each request context with a correlation id that is
// echoed in the X-Request-ID header.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
