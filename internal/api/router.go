package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/skybid/internal/api/middleware"
	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	CreateJob        http.HandlerFunc
	GetJob           http.HandlerFunc
	UpdateJob        http.HandlerFunc
	ActivateJob      http.HandlerFunc
	CancelJob        http.HandlerFunc
	CompleteJob      http.HandlerFunc
	ListTransactions http.HandlerFunc

	SubmitBid http.HandlerFunc
	ListBids  http.HandlerFunc
	AcceptBid http.HandlerFunc

	RevenueReport      http.HandlerFunc
	RunSettlements     http.HandlerFunc
	RescheduleTransfer http.HandlerFunc
	CreateKeyHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Get("/api/v1/jobs/{jobID}/bids", orNotImplemented(deps.ListBids))
		r.Get("/api/v1/jobs/{jobID}/transactions", orNotImplemented(deps.ListTransactions))

		// Client routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeClient))

			r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
			r.Patch("/api/v1/jobs/{jobID}", orNotImplemented(deps.UpdateJob))
			r.Post("/api/v1/jobs/{jobID}/activate", orNotImplemented(deps.ActivateJob))
			r.Post("/api/v1/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))
			r.Post("/api/v1/jobs/{jobID}/complete", orNotImplemented(deps.CompleteJob))
			r.Post("/api/v1/jobs/{jobID}/bids/{bidID}/accept", orNotImplemented(deps.AcceptBid))
		})

		// Pilot routes
		r.With(deps.Auth.RequireScope(models.ScopePilot)).
			Post("/api/v1/jobs/{jobID}/bids", orNotImplemented(deps.SubmitBid))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Get("/api/v1/reports/revenue", orNotImplemented(deps.RevenueReport))
			r.Post("/api/v1/admin/settlements/run", orNotImplemented(deps.RunSettlements))
			r.Post("/api/v1/admin/transfers/{transferID}/reschedule", orNotImplemented(deps.RescheduleTransfer))
			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
