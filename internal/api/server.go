package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/aibridge"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/dashboard"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/telemetry"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/view"
)

const (
	defaultCookieName     = "scrapydash_session"
	defaultRequestTimeout = 60 * time.Second
	requestTimeoutSlack   = 15 * time.Second
)

// Server wires HTTP handlers to the dashboard service and browser sessions.
type Server struct {
	router       chi.Router
	svc          *dashboard.Service
	sessions     *view.Sessions
	renderer     *renderer
	cookieName   string
	probeEnabled bool
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	svc *dashboard.Service,
	sessions *view.Sessions,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:          svc,
		sessions:     sessions,
		renderer:     newRenderer(),
		cookieName:   cfg.Sessions.CookieName,
		probeEnabled: cfg.Probe.Enabled,
		logger:       logger,
	}
	if s.cookieName == "" {
		s.cookieName = defaultCookieName
	}
	timeout := defaultRequestTimeout
	if ai := cfg.AI.Timeout(); ai > 0 {
		timeout = ai + requestTimeoutSlack
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.listProjects)
			r.Post("/", s.createProject)
			r.Route("/{project_id}", func(r chi.Router) {
				r.Get("/", s.getProject)
				r.Delete("/", s.deleteProject)
				r.Put("/status", s.putStatus)
				r.Put("/code", s.putCode)
				r.Put("/drive", s.putDrive)
				r.Post("/refactor", s.refactor)
				r.Post("/preview", s.preview)
				r.Post("/export", s.export)
				r.Get("/diagnostics", s.diagnostics)
			})
		})
		r.Route("/wizard", func(r chi.Router) {
			r.Post("/analyze", s.wizardAnalyze)
			r.Post("/spider", s.wizardSpider)
			r.Post("/preflight", s.wizardPreflight)
		})
		r.Get("/logs", s.listLogs)
		r.Post("/logs/analyze", s.analyzeLogs)
		r.Get("/chat", s.getChat)
		r.Post("/chat", s.postChat)
		r.Get("/drive/files", s.driveFiles)
		r.Get("/stats", s.stats)
	})

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		s.mountUI(r)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.ListProjects(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "project store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scraping.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, scraping.ErrInvalidInput),
		errors.Is(err, scraping.ErrInvalidStatus),
		errors.Is(err, view.ErrUnknownView),
		errors.Is(err, probe.ErrInvalidURL),
		errors.Is(err, probe.ErrBlockedTarget):
		return http.StatusBadRequest
	case errors.Is(err, scraping.ErrBusy), errors.Is(err, scraping.ErrDuplicateID):
		return http.StatusConflict
	case aibridge.IsUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
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
