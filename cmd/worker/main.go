// Package main provides the entrypoint for the CommutePulse background worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/database"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/insight"
	"github.com/commutepulse/commutepulse/internal/neighbor"
	"github.com/commutepulse/commutepulse/internal/session"
	"github.com/commutepulse/commutepulse/internal/streak"
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
	const serviceName = "commutepulse-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting CommutePulse worker")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	location, err := time.LoadLocation(streak.CanonicalTimezone)
	if err != nil {
		log.Warn().Err(err).Msg("canonical timezone unavailable, falling back to UTC")
		location = time.UTC
	}

	// Repositories
	sessionRepo := session.NewPostgresRepository(pool)
	insightRepo := insight.NewPostgresRepository(pool)
	congestionRepo := congestion.NewPostgresRepository(pool)
	departureRepo := departure.NewPostgresRepository(pool)

	// Live transit delay signal (optional)
	var delays departure.DelaySource
	if feedURL := os.Getenv("TRANSIT_FEED_URL"); feedURL != "" {
		delays = transit.NewService(transit.ServiceConfig{
			Provider: feed.NewClient(feed.ClientConfig{
				BaseURL: feedURL,
				APIKey:  os.Getenv("TRANSIT_FEED_API_KEY"),
				Logger:  log,
			}),
			Logger: log,
		})
		log.Info().Msg("transit delay feed initialized")
	}

	// Alert delivery via Pub/Sub (optional)
	var dispatcher departure.Dispatcher
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	if topicName := os.Getenv("ALERT_TOPIC"); topicName != "" && projectID != "" {
		publisher, pubErr := worker.NewNotificationPublisher(ctx, worker.NotificationPublisherConfig{
			ProjectID: projectID,
			TopicName: topicName,
			Logger:    log,
		})
		if pubErr != nil {
			log.Fatal().Err(pubErr).Msg("failed to create alert publisher")
		}
		defer publisher.Close()
		dispatcher = publisher
		log.Info().Str("topic", topicName).Msg("alert publisher initialized")
	} else {
		log.Warn().Msg("alert topic not configured - due alerts are marked but not delivered")
	}

	departureService := departure.NewService(departure.ServiceConfig{
		Repository: departureRepo,
		History:    sessionRepo,
		Baselines:  departure.StaticBaselines{Default: 30},
		Delays:     delays,
		Dispatcher: dispatcher,
		Logger:     log,
		Location:   location,
	})

	matcher := neighbor.NewMatcher(neighbor.MatcherConfig{
		Source: neighbor.NewSessionCheckpointSource(sessionRepo, 0),
		Logger: log,
	})

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

	// Health check server for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Pub/Sub driven jobs when configured, interval fallback otherwise
	subscriptionName := os.Getenv("PUBSUB_SUBSCRIPTION")
	if projectID != "" && subscriptionName != "" {
		handler, psErr := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscriptionName,
			Job:              job,
			Logger:           log,
		})
		if psErr != nil {
			log.Fatal().Err(psErr).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
				cancel()
			}
		}()
	} else {
		log.Warn().Msg("pubsub not configured - running on interval timers")

		recomputeInterval := intervalFromEnv("RECOMPUTE_INTERVAL", 15*time.Minute)
		go func() {
			ticker := time.NewTicker(recomputeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					job.Run(ctx)
				}
			}
		}()

		alertInterval := intervalFromEnv("ALERT_SWEEP_INTERVAL", time.Minute)
		go func() {
			ticker := time.NewTicker(alertInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := departureService.EvaluateAlerts(ctx, time.Now()); err != nil {
						log.Error().Err(err).Msg("alert sweep failed")
					}
				}
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func intervalFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
