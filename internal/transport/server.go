package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/roach88/shortcut-sage/internal/event"
	"github.com/roach88/shortcut-sage/internal/pipeline"
	"github.com/roach88/shortcut-sage/internal/telemetry"
)

const (
	// DefaultAddr is the loopback address the daemon listens on.
	DefaultAddr = "127.0.0.1:7878"

	maxEventBytes   = 64 << 10
	shutdownTimeout = 5 * time.Second
)

// MetricsSource exports live metrics. Implemented by *telemetry.Metrics.
type MetricsSource interface {
	Export(now time.Time) telemetry.Snapshot
}

// Server is the daemon's HTTP surface.
type Server struct {
	addr       string
	dispatcher *pipeline.Dispatcher
	pipeline   *pipeline.Pipeline
	hub        *Hub
	metrics    MetricsSource
	clock      pipeline.Clock
	logger     *slog.Logger
}

// Config holds the collaborators of a Server.
type Config struct {
	Addr       string
	Dispatcher *pipeline.Dispatcher
	Pipeline   *pipeline.Pipeline
	Hub        *Hub
	Metrics    MetricsSource // optional
	Clock      pipeline.Clock
	Logger     *slog.Logger
}

// NewServer creates a server. Missing optional fields take defaults.
func NewServer(cfg Config) *Server {
	s := &Server{
		addr:       cfg.Addr,
		dispatcher: cfg.Dispatcher,
		pipeline:   cfg.Pipeline,
		hub:        cfg.Hub,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	if s.clock == nil {
		s.clock = pipeline.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleEvent)
	mux.HandleFunc("GET /v1/ping", s.handlePing)
	mux.HandleFunc("GET /v1/buffer", s.handleBuffer)
	mux.HandleFunc("POST /v1/accept", s.handleAccept)
	mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	mux.Handle("GET /v1/suggestions", s.hub)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.CloseAll()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("transport listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read body"})
		return
	}
	if len(body) > maxEventBytes {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "event too large"})
		return
	}

	res, err := s.dispatcher.Submit(r.Context(), body)
	if err != nil {
		var perr *event.ParseError
		switch {
		case errors.As(err, &perr):
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: perr.Message, Field: perr.Field})
		case errors.Is(err, pipeline.ErrDispatcherClosed):
			s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			s.logger.Warn("event submit failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		}
		return
	}
	s.writeJSON(w, http.StatusOK, res.Suggestions)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong")
}

// BufferState is the /v1/buffer response.
type BufferState struct {
	WindowSeconds float64       `json:"window_seconds"`
	Events        []event.Event `json:"events"`
}

func (s *Server) handleBuffer(w http.ResponseWriter, _ *http.Request) {
	events := s.pipeline.BufferState()
	if events == nil {
		events = []event.Event{}
	}
	s.writeJSON(w, http.StatusOK, BufferState{
		WindowSeconds: s.pipeline.Window().Seconds(),
		Events:        events,
	})
}

type acceptRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || event.NormalizeAction(req.Action) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "action is required", Field: "action"})
		return
	}
	s.pipeline.Accept(req.Action, s.clock.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "telemetry disabled"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.metrics.Export(s.clock.Now()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}
