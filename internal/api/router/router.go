package router

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/arteita/fretebot/internal/http/middleware"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/opportunity"
	"github.com/arteita/fretebot/pkg/logging"
)

// WebhookPath is the shared endpoint for both messaging backends.
const WebhookPath = messaging.WebhookPath

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *messaging.WebhookHandler
	WhatsAppAdmin  *messaging.AdminHandler
	Opportunities  *opportunity.AdminHandler
	MetricsHandler http.Handler

	AdminAuthSecret string
	AdminJWTIssuer  string

	// WebhookLimiter throttles the public webhook per client IP (optional).
	WebhookLimiter *httpmiddleware.RateLimiter

	// HealthChecks are reported by /health; any failure turns it into 503.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, "/health", "/metrics"))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Route(WebhookPath, func(wh chi.Router) {
				if cfg.WebhookLimiter != nil {
					wh.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter))
				}
				wh.Get("/", cfg.Webhook.Verify)
				wh.Post("/", cfg.Webhook.Receive)
			})
		}
	})

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.WithIssuer(cfg.AdminJWTIssuer)))

			if cfg.WhatsAppAdmin != nil {
				admin.Route("/whatsapp", func(wa chi.Router) {
					wa.Get("/status", cfg.WhatsAppAdmin.Status)
					wa.Get("/pairing-code", cfg.WhatsAppAdmin.PairingCode)
					wa.Post("/cache/invalidate", cfg.WhatsAppAdmin.InvalidateCache)
					wa.With(httpmiddleware.RequireRole("admin")).
						Post("/configs/{id}/instance", cfg.WhatsAppAdmin.InstanceAction)
				})
			}
			if cfg.Opportunities != nil {
				admin.Get("/opportunities", cfg.Opportunities.ListOpen)
				admin.Post("/opportunities/{id}/status", cfg.Opportunities.UpdateStatus)
				admin.Get("/groups", cfg.Opportunities.ListGroups)
				admin.Put("/groups/{remoteID}", cfg.Opportunities.ConfigureGroup)
			}
		})
	}

	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if len(names) > 0 {
			results := make(map[string]string, len(names))
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					results[name] = err.Error()
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
					continue
				}
				results[name] = "ok"
			}
			body["checks"] = results
		}
		writeJSON(w, status, body)
	}
}
