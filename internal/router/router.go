package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"guardian-recovery/internal/config"
	"guardian-recovery/internal/handler"
	"guardian-recovery/internal/middleware"
	"guardian-recovery/internal/model"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Guardian *handler.GuardianHandler
	Recovery *handler.RecoveryHandler
	Approval *handler.ApprovalHandler
	Audit    *handler.AuditHandler
	Events   *handler.EventsHandler
	Metrics  http.Handler
	Health   http.HandlerFunc
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	health := h.Health
	if health == nil {
		health = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}
	}
	r.Get("/health", health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(api chi.Router) {
		// The websocket stream hijacks the connection and cannot sit behind
		// the buffering timeout handler.
		api.With(authMiddleware.RequireAuth).Get("/events", h.Events.Stream)

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(cfg.RequestTimeout))

			api.Route("/auth", func(auth chi.Router) {
				auth.Post("/challenge", h.Auth.Challenge)
				auth.Post("/login", h.Auth.Login)
				auth.Post("/refresh", h.Auth.Refresh)
				auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
				auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
			})

			api.Group(func(api chi.Router) {
				api.Use(authMiddleware.RequireAuth)

				api.Get("/guardians", h.Guardian.List)
				api.Post("/guardians", h.Guardian.Add)
				api.Get("/guardians/{identity}", h.Guardian.Get)
				api.Delete("/guardians/{identity}", h.Guardian.Remove)
				api.Put("/guardians/{identity}/weight", h.Guardian.UpdateWeight)

				api.Get("/recovery", h.Recovery.Status)
				api.Post("/recovery/initiate", h.Recovery.Initiate)
				api.Post("/recovery/approve", h.Recovery.Approve)
				api.Post("/recovery/cancel", h.Recovery.Cancel)
				api.Get("/recovery/approvals/{identity}", h.Recovery.HasApproved)

				api.Get("/approvals/allowance", h.Approval.Allowance)
				api.Get("/approvals/revoked", h.Approval.Revoked)
				api.Post("/approvals/revoke", h.Approval.Revoke)
				api.Post("/approvals/revoke/batch", h.Approval.BatchRevoke)
				api.Post("/approvals/emergency", h.Approval.Emergency)

				api.With(authMiddleware.RequireRoles(model.RoleOwner)).Get("/audit", h.Audit.List)
			})
		})
	})

	return r
}
