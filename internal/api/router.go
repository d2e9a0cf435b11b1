/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * the standard middleware stack plus authentication per route group.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the web client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// WalletRoutes creates and returns a new router for the wallet service.
func WalletRoutes(h *WalletHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Catalog endpoints are public: the client renders pickers before login.
	r.Get("/operators/classify", h.ClassifyHandler)
	r.Get("/catalog/payment-methods", h.PaymentMethodsHandler)
	r.Get("/catalog/plans", h.PlansHandler)
	r.Get("/catalog/plans/categories", h.PlanCategoriesHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/wizard/{flow}", h.StartRunHandler)
		r.Get("/wizard/runs/{runID}", h.GetRunHandler)
		r.Patch("/wizard/runs/{runID}", h.UpdateRunHandler)
		r.Post("/wizard/runs/{runID}/advance", h.AdvanceRunHandler)
		r.Post("/wizard/runs/{runID}/retreat", h.RetreatRunHandler)
		r.Delete("/wizard/runs/{runID}", h.AbandonRunHandler)

		r.Get("/transactions", h.ListTransactionsHandler)
	})

	// Back-office surface, guarded by the shared internal key.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Get("/admin/transactions", h.AdminListTransactionsHandler)
		r.Get("/admin/stats", h.AdminStatsHandler)
	})

	return r
}
