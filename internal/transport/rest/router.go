package rest

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"

	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/auth"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/metrics"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/otp"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/transport/middleware"
	"github.com/frahmantamala/fleet-approval/internal/transport/swagger"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
	"github.com/frahmantamala/fleet-approval/internal/workflow"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Base         *transport.BaseHandler
	Health       *HealthHandler
	Auth         *auth.Handler
	Tokens       notification.TokenValidator
	User         *user.Handler
	OTP          *otp.Handler
	Workflow     *workflow.Handler
	Vehicle      *vehicle.Handler
	Audit        *audit.Handler
	Notification *notification.Handler
	Hub          *notification.Hub
	Metrics      *metrics.Metrics
	MetricsPath  string
	SpecPath     string
}

type Options struct {
	AllowedOrigins string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.TraceHeader},
		ExposedHeaders:   []string{middleware.TraceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientIP)
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	router.Use(middleware.LoggingMiddleware(opts.Logger))
	if h.Metrics != nil {
		router.Use(middleware.Metrics(h.Metrics))
		path := h.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, h.Metrics.Handler())
	}

	specPath := h.SpecPath
	if specPath == "" {
		specPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, specPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.Health)
		r.Get("/ping", h.Health.Ping)

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", h.Auth.Login)
			ar.Post("/refresh", h.Auth.RefreshToken)
			ar.Post("/logout", h.Auth.Logout)
		})

		// browsers cannot send headers on the handshake, so the socket authenticates itself
		r.Get("/ws/notifications", h.Hub.ServeWS(h.Tokens))

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			tmOnly := middleware.RequireRoles(h.Base, approval.RoleTransportManager)

			pr.Get("/users/me", h.User.GetCurrentUser)

			pr.Post("/otp/request", h.OTP.Request)
			pr.Post("/otp/verify", h.OTP.Verify)

			pr.Route("/requests", func(rr chi.Router) {
				rr.Post("/highcost/{id}/assign-vehicle", h.Workflow.AssignVehicle)

				rr.Post("/{kind}", h.Workflow.Create)
				rr.Get("/{kind}/mine", h.Workflow.ListMine)
				rr.Get("/{kind}/awaiting", h.Workflow.ListAwaiting)
				rr.Get("/{kind}/driving", h.Workflow.ListDriving)
				rr.Get("/{kind}/{id}", h.Workflow.Get)
				rr.Post("/{kind}/{id}/actions", h.Workflow.Act)
				rr.Post("/{kind}/{id}/estimate", h.Workflow.Estimate)
				rr.Post("/{kind}/{id}/artifacts", h.Workflow.SubmitArtifacts)
				rr.Post("/{kind}/{id}/complete-trip", h.Workflow.CompleteTrip)
				rr.Get("/{kind}/{id}/audit", h.Workflow.History)
			})

			pr.Get("/audit/me", h.Audit.Mine)

			pr.Route("/vehicles", func(vr chi.Router) {
				vr.Get("/", h.Vehicle.List)
				vr.With(tmOnly).Post("/", h.Vehicle.Create)
				vr.With(tmOnly).Get("/under-maintenance", h.Workflow.UnderMaintenance)
				vr.With(tmOnly).Get("/due-for-service", h.Vehicle.DueForService)
				vr.Get("/mine", h.Vehicle.Mine)
				vr.Get("/mine/kilometers", h.Vehicle.MyKilometerLogs)
				vr.Get("/{id}", h.Vehicle.Get)
				vr.With(middleware.RequireRoles(h.Base, approval.RoleTransportManager, approval.RoleDriver)).
					Post("/{id}/kilometers", h.Vehicle.RecordKilometers)

				vr.Group(func(tr chi.Router) {
					tr.Use(tmOnly)
					tr.Post("/{id}/activate", h.Vehicle.Activate)
					tr.Post("/{id}/deactivate", h.Vehicle.Deactivate)
					tr.Post("/{id}/maintenance", h.Workflow.MarkMaintenance)
					tr.Post("/{id}/service", h.Workflow.MarkService)
					tr.Post("/{id}/available-after-maintenance", h.Workflow.AvailableAfterMaintenance)
					tr.Post("/{id}/available-after-service", h.Workflow.AvailableAfterService)
				})
			})

			pr.Route("/coupons", func(cr chi.Router) {
				cr.Get("/", h.Vehicle.Coupons)
				cr.Post("/", h.Vehicle.RequestCoupon)
			})

			pr.Route("/notifications", func(nr chi.Router) {
				nr.Get("/", h.Notification.List)
				nr.Get("/unread-count", h.Notification.UnreadCount)
				nr.Post("/read-all", h.Notification.MarkAllRead)
				nr.Post("/{id}/read", h.Notification.MarkRead)
			})
		})
	})
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
