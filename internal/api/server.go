// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencaselaw/harvester/internal/metrics"
	"github.com/opencaselaw/harvester/internal/pipeline"
)

// Server wires HTTP handlers to the pipeline orchestrator.
type Server struct {
	router   chi.Router
	orch     *pipeline.Orchestrator
	defaults pipeline.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The defaults
// config seeds each run; request bodies may override individual fields.
func NewServer(orch *pipeline.Orchestrator, defaults pipeline.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:     orch,
		defaults: defaults,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Post("/stop", s.stopRun)
		})
		r.Get("/status", s.getStatus)
		r.Get("/events", s.getEvents)
		r.Get("/errors", s.getErrors)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

// runRequest carries per-run overrides of the configured defaults. Absent
// fields keep the default value.
type runRequest struct {
	Sources              []string `json:"sources"`
	YearStart            *int     `json:"year_start"`
	YearEnd              *int     `json:"year_end"`
	RequestDelayMs       *int     `json:"request_delay_ms"`
	Strategies           []string `json:"strategies"`
	AutoRotate           *bool    `json:"auto_rotate"`
	FailureThreshold     *int     `json:"failure_threshold"`
	FixYears             *bool    `json:"fix_years"`
	Deduplicate          *bool    `json:"deduplicate"`
	Download             *bool    `json:"download"`
	DownloadBatchSize    *int     `json:"download_batch_size"`
	DownloadSourceFilter *string  `json:"download_source_filter"`
	CheckpointEvery      *int     `json:"checkpoint_every"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	cfg := s.defaults
	if r.Body != nil && r.ContentLength != 0 {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
			return
		}
		cfg = applyOverrides(cfg, req)
	}
	if err := cfg.Validate(); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.orch.Start(r.Context(), cfg); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			writeError(s.logger, w, http.StatusConflict, err.Error())
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	status := s.orch.Status()
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"run_id": status.RunID})
}

func (s *Server) stopRun(w http.ResponseWriter, _ *http.Request) {
	s.orch.RequestStop()
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"status": "stop requested"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.orch.Status())
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 0 {
			writeError(s.logger, w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	events := s.orch.RecentEvents(
		pipeline.Phase(q.Get("phase")),
		pipeline.Severity(q.Get("severity")),
		limit,
	)
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) getErrors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"errors": s.orch.ErrorSummary()})
}

func applyOverrides(cfg pipeline.Config, req runRequest) pipeline.Config {
	if req.Sources != nil {
		cfg.Sources = append([]string(nil), req.Sources...)
	}
	if req.Strategies != nil {
		cfg.Strategies = append([]string(nil), req.Strategies...)
	}
	cfg.YearStart = valueOrDefault(req.YearStart, cfg.YearStart)
	cfg.YearEnd = valueOrDefault(req.YearEnd, cfg.YearEnd)
	if req.RequestDelayMs != nil {
		cfg.RequestDelay = time.Duration(*req.RequestDelayMs) * time.Millisecond
	}
	cfg.AutoRotate = valueOrDefault(req.AutoRotate, cfg.AutoRotate)
	cfg.FailureThreshold = valueOrDefault(req.FailureThreshold, cfg.FailureThreshold)
	cfg.FixYears = valueOrDefault(req.FixYears, cfg.FixYears)
	cfg.Deduplicate = valueOrDefault(req.Deduplicate, cfg.Deduplicate)
	cfg.Download = valueOrDefault(req.Download, cfg.Download)
	cfg.DownloadBatchSize = valueOrDefault(req.DownloadBatchSize, cfg.DownloadBatchSize)
	cfg.DownloadSourceFilter = valueOrDefault(req.DownloadSourceFilter, cfg.DownloadSourceFilter)
	cfg.CheckpointEvery = valueOrDefault(req.CheckpointEvery, cfg.CheckpointEvery)
	return cfg
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
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
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
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

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
