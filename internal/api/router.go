package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/critiq-dev/reviewstats/internal/aggregator"
)

// RouterConfig holds the collaborators the router wires up.
type RouterConfig struct {
	Services   map[string]HealthChecker
	Source     StatSource
	Queue      aggregator.Enqueuer
	Analytics  Recorder
	AdminToken string
}

// RouterResult holds the router and resources that need cleanup.
type RouterResult struct {
	Router      *chi.Mux
	RateLimiter *RateLimiter
}

// NewRouter creates and configures the HTTP router.
// Caller must call result.RateLimiter.Stop() on shutdown.
func NewRouter(cfg *RouterConfig) *RouterResult {
	r := chi.NewRouter()

	// 100 requests per minute per IP
	limiter := NewRateLimiter(RateLimitConfig{PerMinute: 100, Burst: 20})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)
	r.Use(limiter.Middleware)

	r.Get("/api/health", NewHealthHandler(cfg.Services))

	statsHandler := NewStatsHandler(cfg.Source, cfg.Analytics)
	r.Get("/api/leaderboard/{when}", statsHandler.Leaderboard)
	r.Get("/api/stats/user/{email}/{when}", statsHandler.UserStats)

	admin := NewAdminHandler(cfg.Queue, cfg.AdminToken)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(admin.Authorize)
		r.Post("/update-stats", admin.UpdateStats)
		r.Post("/refresh-scores", admin.RefreshScores)
	})

	return &RouterResult{
		Router:      r,
		RateLimiter: limiter,
	}
}
