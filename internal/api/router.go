package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the Chi router with all API routes mounted. metrics may
// be nil, in which case /metrics is not served.
func NewRouter(payments Payments, metrics http.Handler) http.Handler {
	h := &Handlers{payments: payments}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	// Payments.
	r.Post("/card/{cardId}/payment", h.CreatePayment)
	r.Get("/payments/{key}", h.GetPayment)

	// Capture failures awaiting manual follow-up.
	r.Get("/reconciliation", h.ListReconciliation)

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}
