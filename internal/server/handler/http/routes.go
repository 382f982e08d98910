// Package http provides HTTP routing and middleware configuration
// for the FinKeeper finance service.
package http

import (
	"net/http"

	"github.com/atinyakov/FinKeeper/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves
// the FinKeeper API.
//
// Routes:
//
//	GET  /api/health        → Health
//	POST /api/register      → authHandler.Register
//	POST /api/login         → authHandler.Login
//	GET  /api/me            → authHandler.Me               (bearer token)
//	POST /api/transactions  → financeHandler.CreateTransaction (bearer token)
//	GET  /api/transactions  → financeHandler.ListTransactions  (bearer token)
//	GET  /api/categories    → financeHandler.Categories        (bearer token)
//
// Middleware chain (applied in order):
//  1. Recoverer: turns panics into 500
//  2. AllowContentType("application/json"): rejects non-JSON bodies
//  3. WithRequestLogging(logger): logs incoming requests
func NewRouter(
	authHandler *AuthHandler,
	financeHandler *FinanceHandler,
	auth middleware.Authenticator,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))
	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Get("/health", Health)
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Protected group: requires a valid session token
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(auth, logger))
			r.Get("/me", authHandler.Me)
			r.Post("/transactions", financeHandler.CreateTransaction)
			r.Get("/transactions", financeHandler.ListTransactions)
			r.Get("/categories", financeHandler.Categories)
		})
	})

	return r
}
