// Package api exposes the HTTP interface of the optimization service.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sites/{org_id}/{site_id}/start|stop to manage instances.
//   - GET  /v1/sites/{org_id}/{site_id}/state|tasks|events for monitoring.
//   - POST /v1/sites/{org_id}/{site_id}/tasks/trigger for manual tasks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optiview/optiview/internal/events"
	"github.com/optiview/optiview/internal/events/sinks"
	"github.com/optiview/optiview/internal/metrics"
	"github.com/optiview/optiview/internal/orchestrator"
)

// SiteDefaults fills in per-site settings the start request omits.
type SiteDefaults struct {
	MaxConcurrentTasks int
	TickInterval       time.Duration
}

// Config controls the HTTP surface.
type Config struct {
	APIKeyEnabled  bool
	APIKey         string
	RequestTimeout time.Duration
	StopTimeout    time.Duration
	SiteDefaults   SiteDefaults
}

// Server wires HTTP handlers to the instance registry.
type Server struct {
	router   chi.Router
	registry *orchestrator.Registry
	recent   *sinks.MemorySink
	cfg      Config
	logger   *zap.Logger
	// runCtx governs the lifetime of orchestrator instances started over
	// HTTP; request contexts end with the request and must not be used.
	runCtx context.Context
}

// NewServer constructs a Server with middleware and routes. recent may be
// nil when the event ring is not configured; promHandler serves /metrics.
func NewServer(
	runCtx context.Context,
	registry *orchestrator.Registry,
	recent *sinks.MemorySink,
	promHandler http.Handler,
	httpMetrics *metrics.HTTP,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if runCtx == nil {
		runCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if promHandler == nil {
		promHandler = http.NotFoundHandler()
	}

	s := &Server{
		registry: registry,
		recent:   recent,
		cfg:      cfg,
		logger:   logger,
		runCtx:   runCtx,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promHandler)

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKeyEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/sites/{org_id}/{site_id}", func(r chi.Router) {
			r.Post("/start", s.startSite)
			r.Post("/stop", s.stopSite)
			r.Get("/state", s.getState)
			r.Get("/tasks", s.getTasks)
			r.Post("/tasks/trigger", s.triggerTask)
			r.Get("/events", s.getEvents)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startSiteRequest struct {
	SiteURL            string   `json:"site_url"`
	AutoFix            *bool    `json:"auto_fix"`
	AutoPublish        bool     `json:"auto_publish"`
	Tone               string   `json:"tone"`
	Audience           string   `json:"audience"`
	TargetKeywords     []string `json:"target_keywords"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
}

func (s *Server) startSite(w http.ResponseWriter, r *http.Request) {
	var req startSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SiteURL == "" {
		s.writeError(w, http.StatusBadRequest, "site_url is required")
		return
	}

	cfg := orchestrator.Config{
		OrgID:              chi.URLParam(r, "org_id"),
		SiteID:             chi.URLParam(r, "site_id"),
		SiteURL:            req.SiteURL,
		AutoFix:            boolOrDefault(req.AutoFix, true),
		AutoPublish:        req.AutoPublish,
		Tone:               req.Tone,
		Audience:           req.Audience,
		TargetKeywords:     req.TargetKeywords,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		TickInterval:       s.cfg.SiteDefaults.TickInterval,
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = s.cfg.SiteDefaults.MaxConcurrentTasks
	}

	if _, err := s.registry.Start(s.runCtx, cfg); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"org_id":  cfg.OrgID,
		"site_id": cfg.SiteID,
		"status":  "started",
	})
}

func (s *Server) stopSite(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "org_id")
	siteID := chi.URLParam(r, "site_id")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StopTimeout)
	defer cancel()
	if err := s.registry.Stop(ctx, orgID, siteID); err != nil {
		if errors.Is(err, orchestrator.ErrNotRunning) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"org_id":  orgID,
		"site_id": siteID,
		"status":  "stopped",
	})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "site not running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"state": inst.State()})
}

func (s *Server) getTasks(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "site not running")
		return
	}
	s.writeJSON(w, http.StatusOK, inst.Tasks())
}

type triggerTaskRequest struct {
	Type  string         `json:"type"`
	Input map[string]any `json:"input"`
}

func (s *Server) triggerTask(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "site not running")
		return
	}
	var req triggerTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		s.writeError(w, http.StatusBadRequest, "missing task type")
		return
	}
	var input any
	if req.Input != nil {
		input = req.Input
	}
	task, err := inst.Trigger(orchestrator.TaskType(req.Type), input)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"task": task})
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "org_id")
	siteID := chi.URLParam(r, "site_id")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	var scoped []events.Event
	if s.recent != nil {
		for _, evt := range s.recent.Recent(0) {
			if evt.OrgID == orgID && evt.SiteID == siteID {
				scoped = append(scoped, evt)
			}
		}
		if len(scoped) > limit {
			scoped = scoped[len(scoped)-limit:]
		}
	}
	if scoped == nil {
		scoped = []events.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": scoped})
}

func (s *Server) instance(r *http.Request) (*orchestrator.Orchestrator, bool) {
	return s.registry.Get(chi.URLParam(r, "org_id"), chi.URLParam(r, "site_id"))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}
