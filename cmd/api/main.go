// Package main provides the entrypoint for the CommutePulse API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/api"
	"github.com/commutepulse/commutepulse/internal/api/handler"
	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/database"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/insight"
	"github.com/commutepulse/commutepulse/internal/neighbor"
	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/session"
	"github.com/commutepulse/commutepulse/internal/streak"
	"github.com/commutepulse/commutepulse/internal/telemetry"
	"github.com/commutepulse/commutepulse/internal/transit"
	"github.com/commutepulse/commutepulse/internal/transit/feed"
	"github.com/commutepulse/commutepulse/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "commutepulse-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting CommutePulse API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Canonical calendar for streaks, departures, and aggregation buckets
	location, err := time.LoadLocation(streak.CanonicalTimezone)
	if err != nil {
		log.Warn().Err(err).Msg("canonical timezone unavailable, falling back to UTC")
		location = time.UTC
	}

	// Repositories
	sessionRepo := session.NewPostgresRepository(pool)
	streakRepo := streak.NewPostgresRepository(pool)
	insightRepo := insight.NewPostgresRepository(pool)
	congestionRepo := congestion.NewPostgresRepository(pool)
	departureRepo := departure.NewPostgresRepository(pool)

	// Streaks feed off session completions
	streakService := streak.NewService(streak.ServiceConfig{
		Repository: streakRepo,
		Logger:     log,
		Location:   location,
	})

	sessionService := session.NewService(session.ServiceConfig{
		Repository: sessionRepo,
		Logger:     log,
		Streaks:    streakService,
	})

	// Live transit delay signal (optional)
	providerRegistry := resilience.NewRegistry()
	var delays departure.DelaySource
	var transitStatus handler.TransitStatus
	if feedURL := os.Getenv("TRANSIT_FEED_URL"); feedURL != "" {
		feedHTTPClient := resilience.NewClient(resilience.DefaultClientConfig(feed.ProviderName))
		providerRegistry.Register(feed.ProviderName, feedHTTPClient)

		transitService := transit.NewService(transit.ServiceConfig{
			Provider: feed.NewClient(feed.ClientConfig{
				BaseURL:    feedURL,
				APIKey:     os.Getenv("TRANSIT_FEED_API_KEY"),
				HTTPClient: feedHTTPClient,
				Logger:     log,
			}),
			Logger: log,
			Health: providerRegistry,
		})
		delays = transitService
		transitStatus = transitService
		log.Info().Msg("transit delay feed initialized")
	} else {
		log.Warn().Msg("transit delay feed not configured - predictions run without realtime adjustment")
	}

	departureService := departure.NewService(departure.ServiceConfig{
		Repository: departureRepo,
		History:    sessionRepo,
		Baselines:  departure.StaticBaselines{Default: 30},
		Delays:     delays,
		Logger:     log,
		Location:   location,
	})

	// Neighbor matcher over recent session checkpoint sets
	matcher := neighbor.NewMatcher(neighbor.MatcherConfig{
		Source: neighbor.NewSessionCheckpointSource(sessionRepo, 0),
		Logger: log,
	})

	// Regional aggregation pass, exposed through POST /v1/ops/recompute
	aggregator := insight.NewAggregator(insight.AggregatorConfig{
		Sessions:   sessionRepo,
		Insights:   insightRepo,
		Congestion: congestionRepo,
		Calculator: congestion.NewCalculator(congestion.DefaultLevelPolicy(), location),
		Neighbors:  matcher,
		Logger:     log,
		Location:   location,
	})

	job := worker.NewRecomputeJob(worker.RecomputeJobConfig{
		Logger:     log,
		Insights:   aggregator,
		Departures: departureService,
	})

	// JWT validation config (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Auth: middleware.AuthConfig{
			Secret:   []byte(jwtSigningKey),
			Issuer:   os.Getenv("JWT_ISSUER"),
			Audience: os.Getenv("JWT_AUDIENCE"),
		},
		SessionService:   sessionService,
		StreakService:    streakService,
		DepartureService: departureService,
		InsightStore:     insightRepo,
		CongestionStore:  congestionRepo,
		NeighborMatcher:  matcher,
		DB:               pool,
		Transit:          transitStatus,
		Job:              job,
		Providers:        providerRegistry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
