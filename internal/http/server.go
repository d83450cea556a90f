// Package http exposes the portal as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vansales/internal/archive"
	"vansales/internal/auth"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
	"vansales/internal/services"
)

const (
	defaultRateLimit = 60
	loginRateLimit   = 10
	requestTimeout   = 30 * time.Second
	readyTimeout     = 5 * time.Second
)

// Deps are the collaborators the server routes to. Portal, Auth and Tokens
// are required.
type Deps struct {
	Portal  *services.Portal
	Auth    auth.Authenticator
	Tokens  *auth.Tokens
	Archive archive.Archive
	Metrics *metrics.Metrics
	Logger  *applog.Logger

	// RateLimit is requests per minute per client; zero means 60.
	RateLimit int
	// Ready checks external dependencies for /readyz.
	Ready func(ctx context.Context) error
	// Production enables HSTS and secure session cookies.
	Production bool
}

type Server struct {
	http.Server
	portal     *services.Portal
	auth       auth.Authenticator
	tokens     *auth.Tokens
	archive    archive.Archive
	ready      func(ctx context.Context) error
	production bool

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP})
	}
	arch := d.Archive
	if arch == nil {
		arch = archive.NewMemory()
	}
	limit := d.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	s := &Server{
		portal:     d.Portal,
		auth:       d.Auth,
		tokens:     d.Tokens,
		archive:    arch,
		ready:      d.Ready,
		production: d.Production,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		applog.Middleware(logger),
		applog.RequestIDMiddleware(func(r *http.Request) string { return middleware.GetReqID(r.Context()) }),
		requestLogger,
		middleware.Recoverer,
		d.Metrics.Middleware,
		securityHeaders(d.Production),
	)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout), rateLimit(limit, time.Minute))
		r.With(rateLimit(loginRateLimit, time.Minute)).Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Get("/dashboard", s.handleDashboard)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/daily", s.handleDailyReports)
				r.Get("/purchases", s.handlePurchaseDrift)
			})

			r.Route("/imports/{token}", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/commit", s.handleCommitImport)
				r.Delete("/", s.handleCancelImport)
			})

			r.Get("/{kind}", s.handleList)
			r.Post("/{kind}", s.handleCreate)
			r.Get("/{kind}/export", s.handleExport)
			r.With(requireAdmin).Post("/{kind}/import", s.handleStageImport)
			r.Patch("/{kind}/{id}", s.handleUpdate)
			r.With(requireAdmin).Delete("/{kind}/{id}", s.handleDelete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONProblem(w, r, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONProblem(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports whether the snapshot is loaded and every dependency
// answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{"snapshot": "ok", "dependencies": "ok"}
	status := http.StatusOK
	if err := s.portal.Ready(); err != nil {
		checks["snapshot"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["dependencies"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
