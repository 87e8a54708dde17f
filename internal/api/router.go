// Package api provides the HTTP API for CommutePulse.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/api/handler"
	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/insight"
	"github.com/commutepulse/commutepulse/internal/neighbor"
	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/session"
	"github.com/commutepulse/commutepulse/internal/streak"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Auth        middleware.AuthConfig

	SessionService   *session.Service
	StreakService    *streak.Service
	DepartureService *departure.Service
	InsightStore     insight.Repository
	CongestionStore  congestion.Repository
	NeighborMatcher  *neighbor.Matcher

	// Ops wiring. Nil fields degrade the corresponding status section.
	DB        handler.Pinger
	Transit   handler.TransitStatus
	Job       handler.RecomputeRunner
	Providers *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "commutepulse-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		DB:        cfg.DB,
		Transit:   cfg.Transit,
		Job:       cfg.Job,
		Providers: cfg.Providers,
	})
	sessionHandler := handler.NewSessionHandler(cfg.SessionService)
	streakHandler := handler.NewStreakHandler(cfg.StreakService)
	departureHandler := handler.NewDepartureHandler(cfg.DepartureService)
	insightHandler := handler.NewInsightHandler(cfg.InsightStore, cfg.CongestionStore, cfg.NeighborMatcher)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.Auth)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status and recompute require authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
			r.With(authMiddleware, expensiveRateLimit).Post("/recompute", opsHandler.TriggerRecompute)
		})

		// Published aggregates (public) - standard rate limiting
		r.Route("/insights", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/regions", insightHandler.ListInsights)
			r.Get("/regions/{regionId}", insightHandler.GetInsight)
		})
		r.Route("/congestion", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/slots/{slot}", insightHandler.CongestionBySlot)
			r.Get("/segments/{segmentKey}", insightHandler.CongestionBySegment)
		})

		// Me endpoints (authenticated) - user-based rate limiting
		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit)) // 100 req/min per user

			// Commute sessions
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessionHandler.StartSession)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", sessionHandler.GetSession)
					r.Post("/checkpoints", sessionHandler.RecordArrival)
					r.Post("/complete", sessionHandler.CompleteSession)
					r.Post("/abandon", sessionHandler.AbandonSession)
				})
			})

			// Streaks
			r.Route("/streak", func(r chi.Router) {
				r.Get("/", streakHandler.GetStreak)
				r.Put("/weekly-goal", streakHandler.SetWeeklyGoal)
			})

			// Neighbor count
			r.Get("/neighbors", insightHandler.NeighborCount)

			// Smart departures
			r.Route("/departures", func(r chi.Router) {
				r.Get("/", departureHandler.ListSettings)
				r.Post("/", departureHandler.CreateSetting)
				r.Route("/{settingId}", func(r chi.Router) {
					r.Get("/", departureHandler.GetSetting)
					r.Delete("/", departureHandler.DisableSetting)
					r.Get("/today", departureHandler.TodaySnapshot)
					r.Post("/recalculate", departureHandler.Recalculate)
					r.Post("/departed", departureHandler.ConfirmDeparted)
				})
			})
		})
	})

	return r
}
