package httpapi

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/handler"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/middleware"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	AccountHandler *handler.AccountHandler
	HealthHandler  *handler.HealthHandler
	Auth           *middleware.APIKeyAuth
}

// NewRouter creates a new HTTP router. Background work started for the
// router stops when ctx is done.
func NewRouter(ctx context.Context, cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
	}

	if cfg.AccountHandler == nil || cfg.Auth == nil {
		return r
	}

	h := cfg.AccountHandler
	r.Route("/accounts", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.With(middleware.Require(middleware.PermCreate)).Post("/", h.CreateAccount)

		r.Route("/{account_id}", func(r chi.Router) {
			r.With(middleware.Require(middleware.PermRead)).Get("/", h.GetAccount)
			r.With(middleware.Require(middleware.PermRead)).Get("/transactions", h.ListTransactions)
			r.With(middleware.Require(middleware.PermDeposit)).Post("/deposit", h.Deposit)
			r.With(middleware.Require(middleware.PermWithdraw)).Post("/withdraw", h.Withdraw)
			r.With(middleware.Require(middleware.PermFreeze)).Post("/freeze", h.Freeze)
			r.With(middleware.Require(middleware.PermUnfreeze)).Post("/unfreeze", h.Unfreeze)
			r.With(middleware.Require(middleware.PermClose)).Post("/close", h.Close)
		})
	})

	return r
}
