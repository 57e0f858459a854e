// Package api provides the HTTP API for GateWarden.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/accesslog"
	"github.com/gatewarden/gatewarden/internal/api/handler"
	"github.com/gatewarden/gatewarden/internal/api/middleware"
	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/event"
	"github.com/gatewarden/gatewarden/internal/settings"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
	"github.com/gatewarden/gatewarden/internal/webhook"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Verifier    *auth.Verifier

	// RequireTLS rejects plain-HTTP operator traffic. Webhook ingress is exempt.
	RequireTLS bool
	// AllowedOrigins lists browser origins allowed to open the event stream.
	AllowedOrigins []string

	Devices      *device.Service
	AccessLogs   accesslog.Repository
	Adapters     handler.AdapterCache
	DeviceHealth *resilience.Registry
	Syncs        handler.SyncService
	Settings     *settings.Service
	Distributor  *event.Distributor
	Ingestor     *webhook.Ingestor
	Checkers     []handler.Checker
}

const webhookPrefix = "/api/webhooks/"

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "gatewarden-api"
	}

	// Order matters: the request ID must exist before tracing and logging read it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS, webhookPrefix))
	r.Use(middleware.ContentTypeJSON)

	var policy handler.ExportPolicy
	if cfg.Settings != nil {
		policy = cfg.Settings
	}

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.DeviceHealth, cfg.Checkers...)
	deviceHandler := handler.NewDeviceHandler(cfg.Devices, cfg.AccessLogs, cfg.Adapters)
	syncHandler := handler.NewSyncHandler(cfg.Syncs, policy)
	eventHandler := handler.NewEventHandler(cfg.Distributor, cfg.Metrics, cfg.AllowedOrigins, cfg.Logger)
	webhookHandler := handler.NewWebhookHandler(cfg.Ingestor, cfg.Metrics, cfg.Logger)
	settingsHandler := handler.NewSettingsHandler(cfg.Settings)

	authMiddleware := middleware.Auth(cfg.Verifier)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)
	operatorOnly := middleware.RequireRole(auth.RoleOperator)
	syncRateLimit := middleware.RateLimitByOperator(middleware.SyncRateLimit)

	r.Route("/api", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware, operatorOnly).Get("/status", opsHandler.SystemStatus)
		})

		// Terminals cannot present bearer tokens; ingress is limited per source address.
		r.Route("/webhooks/{vendor}", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.WebhookRateLimit))
			r.Post("/", webhookHandler.Receive)
			r.Get("/", webhookHandler.Receive)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(operatorOnly)
			r.Use(middleware.RateLimitByOperator(middleware.StandardRateLimit))
			r.Use(middleware.RequireJSON)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", deviceHandler.ListDevices)
				r.With(adminOnly).Post("/", deviceHandler.CreateDevice)
				r.Route("/{deviceId}", func(r chi.Router) {
					r.Get("/", deviceHandler.GetDevice)
					r.With(adminOnly).Put("/", deviceHandler.UpdateDevice)
					r.With(adminOnly).Delete("/", deviceHandler.DeleteDevice)
					r.Get("/logs", deviceHandler.ListAccessLogs)

					r.Get("/sync", syncHandler.GetSync)
					r.Delete("/sync", syncHandler.ResetSync)
					r.With(syncRateLimit).Post("/sync/{mode}", syncHandler.StartSync)
					r.With(syncRateLimit).Get("/reconcile", syncHandler.Reconcile)
				})
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.ListEvents)
				r.With(adminOnly).Delete("/", eventHandler.ClearEvents)
				r.Get("/stream", eventHandler.StreamEvents)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", settingsHandler.ListSettings)
				r.With(adminOnly).Put("/", settingsHandler.UpdateSettings)
			})
		})
	})

	return r
}
