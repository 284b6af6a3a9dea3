/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for operator tooling

ROUTE GROUPS:
  /api/applications/*   Origination workflow
  /api/accounts/*       Active accounts: ledger, adjustments, disbursements
  /api/admin/*          Admin operations (manual sweep)
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, registry *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Origination workflow
		r.Route("/applications", func(r chi.Router) {
			r.Get("/", h.ListApplications)
			r.Post("/", h.CreateApplication)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetApplication)
				r.Put("/property", h.AttachProperty)
				r.Put("/documents/{type}", h.SetDocument)
				r.Post("/submit", h.SubmitApplication)
				r.Post("/eligibility", h.RunEligibility)
				r.Post("/stages/{stage}/assign", h.AssignStage)
				r.Post("/stages/{stage}/resubmit", h.ResubmitStage)
				r.Post("/advance", h.AdvanceStage)
				r.Post("/offer", h.SendOffer)
				r.Post("/offer/respond", h.RespondOffer)
				r.Post("/contract", h.GenerateContract)
				r.Post("/contract/sign", h.SignContract)
				r.Post("/activate", h.ActivateLease)
				r.Post("/cancel", h.CancelApplication)
			})
		})

		// Active accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAccount)
				r.Get("/schedule", h.GetSchedule)
				r.Get("/payments", h.GetPayments)
				r.Post("/payments", h.RecordPayment)
			r.Post("/payments/{payID}/reverse", h.ReversePayment)
				r.Get("/settlement-quote", h.SettlementQuote)

				r.Post("/adjustments", h.RequestAdjustment)
				r.Post("/adjustments/{adjID}/approve", h.ApproveAdjustment)
				r.Post("/adjustments/{adjID}/reject", h.RejectAdjustment)

				r.Post("/milestones", h.AddMilestone)
				r.Put("/milestones/{msID}", h.UpdateMilestone)
				r.Post("/disbursements", h.RequestDisbursement)
				r.Post("/disbursements/{dsbID}/approve", h.ApproveDisbursement)
				r.Post("/disbursements/{dsbID}/reject", h.RejectDisbursement)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	return r
}
