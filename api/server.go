/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: One zerolog line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for frontend

ROUTE GROUPS:
  /api/campaigns/*      Campaigns, donations, donors, followers
  /api/donations/*      Donation review workflow
  /api/stats            Admin dashboard
  /api/reconciliation/* Manual tick, schedule, run history
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness

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
)

// RouterConfig carries router-level settings.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Campaign routes
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Post("/{id}/extend", h.ExtendCampaign)
			r.Get("/{id}/daily", h.CampaignDaily)
			r.Post("/{id}/donations", h.Donate)
			r.Get("/{id}/donations", h.ListDonations)
			r.Get("/{id}/donors", h.ListDonors)
			r.Put("/{id}/followers/{accountID}", h.Follow)
			r.Delete("/{id}/followers/{accountID}", h.Unfollow)
		})

		// Donation review routes
		r.Route("/donations", func(r chi.Router) {
			r.Post("/{id}/confirm", h.ConfirmDonation)
			r.Post("/{id}/refuse", h.RefuseDonation)
			r.Post("/{id}/reset", h.ResetDonation)
		})

		r.Get("/stats", h.GetStats)

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Post("/run", h.RunReconciliation)
			r.Get("/next", h.NextReconciliation)
			r.Get("/runs", h.ListReconciliationRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
			r.Post("/demo", h.LoadDemo)
		})
	})

	return r
}
