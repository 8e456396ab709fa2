package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/whatsapp-booking-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-booking-agent/internal/http/middleware"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Webhook         http.Handler
	Health          http.Handler
	AdminProfiles   *handlers.AdminProfilesHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	// RateLimiter guards the webhook; nil disables limiting.
	RateLimiter  *httpmiddleware.RateLimiter
	RateObserver httpmiddleware.RateLimitObserver
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Webhook == nil {
		panic("router: webhook handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Method(http.MethodGet, "/health", cfg.Health)
		} else {
			public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.Route("/webhook", func(wh chi.Router) {
			if cfg.RateLimiter != nil {
				wh.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.RateObserver))
			}
			wh.Use(middleware.AllowContentType("application/json"))
			wh.Method(http.MethodPost, "/ghl", cfg.Webhook)
		})
	})

	if cfg.AdminProfiles != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/profiles", cfg.AdminProfiles.Routes)
		})
	}

	return r
}
