package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sizewatch/internal/alert"
	"github.com/JakeFAU/sizewatch/internal/metrics"
	"github.com/JakeFAU/sizewatch/internal/monitor"
	"github.com/JakeFAU/sizewatch/internal/progress/sinks"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultLogLimit = 100
	maxLogLimit     = 1000
	maxEventLimit   = 1000
)

// Controller is the slice of monitor.Orchestrator the API drives.
type Controller interface {
	Start(items []monitor.WatchedItem, cfg monitor.RunConfig) error
	Stop()
	Status() monitor.Status
}

// LogSource returns the newest log lines, oldest first.
type LogSource interface {
	Lines(limit int) []string
}

// EventSource returns recent progress events, oldest first.
type EventSource interface {
	Recent(stage string, limit int) []sinks.Record
}

// Options wires NewServer. Controller is required.
type Options struct {
	Controller Controller
	Logs       LogSource
	Events     EventSource
	// Defaults fill any run setting the request omits.
	Defaults     monitor.RunConfig
	DefaultItems []monitor.WatchedItem
	// APIKey enables X-API-Key checks when non-empty.
	APIKey      string
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTP
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Server wires HTTP handlers to the monitor.
type Server struct {
	router   chi.Router
	ctrl     Controller
	logs     LogSource
	events   EventSource
	defaults monitor.RunConfig
	items    []monitor.WatchedItem
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("api: controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	s := &Server{
		ctrl:     opts.Controller,
		logs:     opts.Logs,
		events:   opts.Events,
		defaults: opts.Defaults,
		items:    opts.DefaultItems,
		logger:   opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if opts.HTTPMetrics != nil {
		r.Use(opts.HTTPMetrics.Middleware)
	}
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(timeoutMiddleware(opts.Timeout))

	r.Get("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/run", s.startRun)
		r.Post("/stop", s.stopRun)
		r.Get("/status", s.status)
		r.Get("/logs", s.recentLogs)
		r.Get("/events", s.recentEvents)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startRun handles POST /v1/run. An empty body starts a run from the
// configured watch-list and defaults.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	items, cfg, err := s.toRun(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.Start(items, cfg); err != nil {
		switch {
		case errors.Is(err, monitor.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, monitor.ErrEmptyWatchList),
			errors.Is(err, monitor.ErrInvalidDelayRange),
			errors.Is(err, monitor.ErrNoExtractor):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("start run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start run")
		}
		return
	}
	st := s.ctrl.Status()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": st.RunID,
		"phase":  st.Phase,
		"items":  len(items),
	})
}

func (s *Server) stopRun(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{"phase": s.ctrl.Status().Phase})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// recentLogs handles GET /v1/logs?limit=N.
func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines := []string{}
	if s.logs != nil {
		lines = append(lines, s.logs.Lines(limit)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// recentEvents handles GET /v1/events?stage=&limit=.
func (s *Server) recentEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event history unavailable")
		return
	}
	limit, err := parseLimit(r, defaultLogLimit, maxEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stage := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("stage")))
	writeJSON(w, http.StatusOK, map[string]any{"events": s.events.Recent(stage, limit)})
}

type runRequest struct {
	Items           []itemRequest `json:"items"`
	Sizes           sizesField    `json:"sizes"`
	MinDelaySeconds *uint         `json:"min_delay_seconds"`
	MaxDelaySeconds *uint         `json:"max_delay_seconds"`
	BotToken        *string       `json:"bot_token"`
	ChatID          *string       `json:"chat_id"`
}

type itemRequest struct {
	URL   string `json:"url"`
	Store string `json:"store"`
}

// sizesField accepts either "36, XS" or ["36", "XS"].
type sizesField []string

func (f *sizesField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = sizesField{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("sizes must be a string or a list of strings: %w", err)
	}
	*f = many
	return nil
}

func (s *Server) toRun(req runRequest) ([]monitor.WatchedItem, monitor.RunConfig, error) {
	items := s.items
	if len(req.Items) > 0 {
		items = make([]monitor.WatchedItem, 0, len(req.Items))
		for i, raw := range req.Items {
			item, err := monitor.NewWatchedItem(raw.URL, raw.Store)
			if err != nil {
				return nil, monitor.RunConfig{}, fmt.Errorf("items[%d]: %w", i, err)
			}
			items = append(items, item)
		}
	}

	cfg := s.defaults
	if req.Sizes != nil {
		cfg.Sizes = monitor.ParseSizes(req.Sizes...)
		if len(cfg.Sizes) == 0 {
			return nil, monitor.RunConfig{}, errors.New("sizes must name at least one size")
		}
	}
	cfg.MinDelaySeconds = valueOrDefault(req.MinDelaySeconds, cfg.MinDelaySeconds)
	cfg.MaxDelaySeconds = valueOrDefault(req.MaxDelaySeconds, cfg.MaxDelaySeconds)
	cfg.Credentials = alert.Credentials{
		BotToken: strings.TrimSpace(valueOrDefault(req.BotToken, cfg.Credentials.BotToken)),
		ChatID:   strings.TrimSpace(valueOrDefault(req.ChatID, cfg.Credentials.ChatID)),
	}
	return items, cfg, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
