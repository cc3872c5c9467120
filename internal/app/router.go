package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bolsa-empleo/portal/internal/auth"
	"github.com/bolsa-empleo/portal/internal/observability"
	"github.com/bolsa-empleo/portal/internal/rbac"
	"github.com/bolsa-empleo/portal/internal/shared"
	"github.com/bolsa-empleo/portal/internal/view"
	"github.com/bolsa-empleo/portal/jobs"
	"github.com/bolsa-empleo/portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	JobHandler     *jobs.Handler
	Rules          rbac.Rules
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var identities IdentityResolver
	if params.AuthService != nil {
		identities = params.AuthService
	}
	mwConfig := MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Identities:     identities,
		Guard:          rbac.Middleware{Rules: params.Rules, Logger: logger, Metrics: params.Metrics},
		Metrics:        params.Metrics,
	}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(mwConfig) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		// Static assets skip the session stack.
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	pages := pages{logger: logger, templates: params.Templates, csrf: params.CSRFManager}
	// Router-level middleware on the mounted router also wraps its NotFound
	// and MethodNotAllowed handlers, so unknown paths under a guarded prefix
	// still hit the guard.
	site := chi.NewRouter()
	site.Use(chimw.Logger)
	for _, mw := range SessionStack(mwConfig) {
		site.Use(mw)
	}

	site.Get("/", pages.home)
	site.Get("/profile", pages.profile)
	site.Get("/empleos-busqueda", pages.jobSearch)
	site.Get("/admin", pages.admin)
	site.Get("/admin/*", pages.admin)

	site.Route("/auth", params.AuthHandler.MountRoutes)
	site.Route("/api/auth", params.AuthHandler.MountAPIRoutes)
	r.Mount("/", site)

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
