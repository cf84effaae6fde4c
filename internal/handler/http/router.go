package http

import (
	"log/slog"
	"os"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/middleware"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterConfig struct {
	Version        string
	Env            string
	AllowedOrigins []string
	LogLevel       slog.Level
}

type Handlers struct {
	Geofence     GeofenceHandler
	Timesheet    TimesheetHandler
	WorkSummary  WorkSummaryHandler
	Notification NotificationHandler
}

func NewRouter(cfg RouterConfig, JWTService jwt.Service, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "fieldtime"),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	managers := middleware.RequireRole(auth.RoleProjectManager, auth.RoleSystemAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		// SSE authenticates with a query token
		r.Get("/notifications/stream", h.Notification.Stream)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService))

			r.Post("/geofence/validate", h.Geofence.Validate)
			r.Get("/geofence/statistics", h.Timesheet.GeofenceStatistics)

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Get("/zones", h.Geofence.ListZones)
				r.With(managers).Post("/zones", h.Geofence.CreateZone)
				r.With(middleware.RequireRole(supervisors...)).Get("/violations", h.Timesheet.Violations)
			})

			r.Route("/zones/{zoneID}", func(r chi.Router) {
				r.Use(managers)
				r.Put("/", h.Geofence.UpdateZone)
				r.Delete("/", h.Geofence.DeleteZone)
			})

			r.Route("/timesheets", func(r chi.Router) {
				r.Post("/", h.Timesheet.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Timesheet.Get)
					r.Post("/submit", h.Timesheet.Submit)
					r.Post("/approve", h.Timesheet.Approve)
					r.Post("/reject", h.Timesheet.Reject)
					r.Post("/resubmit", h.Timesheet.Resubmit)
					r.Get("/approval", h.Timesheet.GetApproval)
					r.Get("/history", h.Timesheet.History)
				})
			})

			r.Get("/work-summaries/{employeeID}/{yearMonth}", h.WorkSummary.Get)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.Notification.List)
				r.Get("/unread-count", h.Notification.UnreadCount)
				r.Post("/read", h.Notification.MarkAsRead)
				r.Post("/read-all", h.Notification.MarkAllAsRead)
				r.Delete("/{id}", h.Notification.Delete)
				r.Get("/preferences", h.Notification.GetPreferences)
				r.Put("/preferences", h.Notification.UpdatePreference)
				r.Get("/sse-token", h.Notification.GetSSEToken)
			})
		})
	})
	return r
}
