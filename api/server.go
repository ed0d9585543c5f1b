/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   Unique ID per request for tracing
  2. Logger:      Structured access log (slog)
  3. Recoverer:   Panic recovery (500 instead of crash)
  4. Instrument:  Prometheus request counter and latency
  5. CORS:        Cross-origin requests for the frontend
  6. Auth:        JWT identity on /api (dev admin when no secret is set)

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus scrape
  /api/members/*        Member directory (admin)
  /api/chits/*          Chits, settlement records, joins, contributions
  /api/join-requests/*  Join request queue
  /api/contributions    Recording (admin) and member history
  /api/payments/*       Payment verification workflow
  /api/notifications/*  Member inbox
  /api/admin/*          Reports and reminders (admin)
  /api/scenarios/*      Demo scenarios (admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

// RouterOptions configures cross-cutting router behavior.
type RouterOptions struct {
	Origins  []string
	JWT      *JWTManager // nil disables token checks
	DevAdmin string      // identity used when JWT is nil
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	admin := RequireRole(chit.RoleAdmin)
	member := RequireRole(chit.RoleMember, chit.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(opts.JWT, opts.DevAdmin))

		// Member directory
		r.Route("/members", func(r chi.Router) {
			r.Use(admin)
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
		})

		// Chit routes
		r.Route("/chits", func(r chi.Router) {
			r.Get("/", h.ListChits)
			r.With(admin).Post("/", h.CreateChit)
			r.With(member).Get("/joined", h.JoinedChits)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetChit)
				r.With(admin).Put("/", h.UpdateChit)
				r.With(admin).Delete("/", h.DeleteChit)
				r.With(admin).Patch("/release", h.ReleaseChit)

				r.Route("/generated", func(r chi.Router) {
					r.Use(admin)
					r.Get("/", h.ListRecords)
					r.Post("/", h.CreateRecord)
					r.Put("/{rowId}", h.UpdateRecord)
					r.Delete("/{rowId}", h.DeleteRecord)
				})

				r.With(member).Post("/join", h.JoinChit)
				r.Get("/contributions", h.ListContributions)
				r.Get("/unpaid/{memberId}", h.UnpaidPeriods)
				r.With(member).Post("/payments", h.CreatePayment)
			})
		})

		// Join request routes
		r.Route("/join-requests", func(r chi.Router) {
			r.With(member).Get("/mine", h.MyJoinRequests)
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/pending", h.PendingJoinRequests)
				r.Post("/{id}/approve", h.ApproveJoinRequest)
				r.Post("/{id}/reject", h.RejectJoinRequest)
			})
		})

		r.With(admin).Post("/contributions", h.RecordContribution)
		r.Get("/contributions", h.MemberContributions)

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.With(admin).Get("/", h.ListPayments)
			r.Get("/mine", h.MyPayments)
			r.Get("/{id}", h.GetPayment)
			r.Patch("/{id}/request-verification", h.RequestVerification)
			r.With(admin).Patch("/{id}/approve", h.ApprovePayment)
			r.With(admin).Patch("/{id}/reject", h.RejectPayment)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/mine", h.MyNotifications)
			r.Patch("/read-all", h.MarkAllNotificationsRead)
			r.Patch("/{id}/read", h.MarkNotificationRead)
			r.Delete("/{id}", h.DeleteNotification)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(admin)
			r.Get("/reports", h.Report)
			r.Post("/reminders/run", h.RunReminders)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(admin)
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
