package transit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/provider/resilience"
)

// Provider defines the interface for live transit delay feeds.
type Provider interface {
	// DelayForRoute fetches the current delay signal for a route.
	DelayForRoute(ctx context.Context, routeID string) (*RouteDelay, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the transit delay service.
type ServiceConfig struct {
	// Provider is the delay feed.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache a route's delay (default: 2 minutes).
	// Delay signals move quickly, so the cache stays short.
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on feed errors
	// (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// Health, when set, records provider outcomes for the ops surface.
	Health *resilience.Registry
}

// Service provides route delay signals with per-route caching. Consumers
// treat a fetch failure as "no adjustment available," so the service prefers
// a recent stale value over an error.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	health          *resilience.Registry
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu              sync.RWMutex
	routeCache      map[string]*cachedDelay
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cachedDelay struct {
	delay     *RouteDelay
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new transit delay service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 2 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		health:          cfg.Health,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		routeCache:      make(map[string]*cachedDelay),
		cleanupInterval: 10 * time.Minute,
	}
}

// DelayForRoute returns the current delay signal for a route.
func (s *Service) DelayForRoute(ctx context.Context, routeID string) (*RouteDelay, error) {
	s.mu.RLock()
	if cached, ok := s.routeCache[routeID]; ok && time.Now().Before(cached.expiresAt) {
		delay := cached.delay
		s.mu.RUnlock()
		return delay, nil
	}
	s.mu.RUnlock()

	return s.fetchDelay(ctx, routeID)
}

// DelayMinutes returns the signed delay offset for a route. It satisfies the
// departure predictor's delay-source contract.
func (s *Service) DelayMinutes(ctx context.Context, routeID string) (float64, error) {
	delay, err := s.DelayForRoute(ctx, routeID)
	if err != nil {
		return 0, err
	}
	return delay.DelayMinutes, nil
}

// fetchDelay fetches from the provider and updates the cache.
func (s *Service) fetchDelay(ctx context.Context, routeID string) (*RouteDelay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache
	if cached, ok := s.routeCache[routeID]; ok && time.Now().Before(cached.expiresAt) {
		return cached.delay, nil
	}

	s.logger.Debug().
		Str("route_id", routeID).
		Str("provider", s.provider.Name()).
		Msg("fetching route delay from provider")

	delay, err := s.provider.DelayForRoute(ctx, routeID)
	if err != nil {
		if s.health != nil {
			s.health.RecordFailure(s.provider.Name(), err)
		}
		s.logger.Error().Err(err).
			Str("route_id", routeID).
			Msg("failed to fetch route delay")

		// Check for stale data
		if cached, ok := s.routeCache[routeID]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Str("route_id", routeID).
					Time("fetched_at", cached.fetchedAt).
					Msg("serving stale route delay due to provider error")
				return cached.delay, nil
			}
		}

		return nil, ErrProviderUnavailable
	}

	if s.health != nil {
		s.health.RecordSuccess(s.provider.Name())
	}

	now := time.Now()
	s.routeCache[routeID] = &cachedDelay{
		delay:     delay,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.cleanupIfNeeded()

	return delay, nil
}

// cleanupIfNeeded removes route entries too old to serve even as stale data.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.routeCache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.routeCache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired route delay cache entries")
	}
}

// InvalidateCache clears all cached delay data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routeCache = make(map[string]*cachedDelay)
}

// CacheStats contains cache statistics for the ops surface.
type CacheStats struct {
	Provider          string `json:"provider"`
	RouteCacheEntries int    `json:"routeCacheEntries"`
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return CacheStats{
		Provider:          s.provider.Name(),
		RouteCacheEntries: len(s.routeCache),
	}
}
