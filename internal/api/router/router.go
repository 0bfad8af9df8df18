// Package router assembles the HTTP surface: public booking and confirmation
// endpoints under /api/v1, the JWT-guarded staff surface under /api/v1/admin,
// and the health and metrics endpoints at the root.
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/internal/catalog"
	"github.com/wolfman30/vetclinic-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-platform/internal/followup"
	httpmiddleware "github.com/wolfman30/vetclinic-platform/internal/http/middleware"
	"github.com/wolfman30/vetclinic-platform/internal/reminders"
	"github.com/wolfman30/vetclinic-platform/internal/scheduling"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes
// unregistered, so a worker-only or partially wired process can still serve
// health checks.
type Config struct {
	Logger     *logging.Logger
	Catalog    *catalog.Handler
	Scheduling *scheduling.Handler
	Reminders  *reminders.Handler
	Followups  *followup.Handler
	Clinic     *clinic.Handler
	Dashboard  *clinic.DashboardHandler

	AdminJWTSecret     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP rate limit on the public API. Zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// ReadyCheck reports whether downstream dependencies are reachable.
	// Nil means /readyz always reports ready.
	ReadyCheck func(ctx context.Context) error
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.ReadyCheck != nil {
			if err := cfg.ReadyCheck(req.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		// Owner-facing surface: availability, booking, lifecycle,
		// confirmation links.
		api.Group(func(public chi.Router) {
			if cfg.RateLimitRPS > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			}
			if cfg.Scheduling != nil {
				cfg.Scheduling.RegisterRoutes(public)
			}
			if cfg.Reminders != nil {
				cfg.Reminders.RegisterRoutes(public)
			}
		})

		// Staff surface. Mounted even without a secret so requests fail
		// with 401 rather than 404.
		api.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			if cfg.Reminders != nil {
				cfg.Reminders.RegisterAdminRoutes(admin)
			}
			if cfg.Followups != nil {
				cfg.Followups.RegisterAdminRoutes(admin)
			}
			if cfg.Clinic != nil {
				cfg.Clinic.RegisterAdminRoutes(admin)
			}
			if cfg.Dashboard != nil {
				cfg.Dashboard.RegisterAdminRoutes(admin)
			}
			if cfg.Catalog != nil {
				admin.Route("/services", cfg.Catalog.RegisterAdminRoutes)
			}
			if cfg.Scheduling != nil {
				admin.Route("/work-blocks", cfg.Scheduling.RegisterAdminRoutes)
			}
		})
	})

	return r
}
