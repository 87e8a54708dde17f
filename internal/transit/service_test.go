package transit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/transit"
)

type stubProvider struct {
	delay *transit.RouteDelay
	err   error
	calls int
}

func (p *stubProvider) DelayForRoute(_ context.Context, routeID string) (*transit.RouteDelay, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	d := *p.delay
	d.RouteID = routeID
	return &d, nil
}

func (p *stubProvider) Name() string { return "stub" }

func newService(p *stubProvider, ttl time.Duration) *transit.Service {
	return transit.NewService(transit.ServiceConfig{
		Provider: p,
		Logger:   zerolog.Nop(),
		CacheTTL: ttl,
	})
}

func TestService_DelayForRoute(t *testing.T) {
	provider := &stubProvider{delay: &transit.RouteDelay{DelayMinutes: 8, Provider: "stub"}}
	svc := newService(provider, time.Minute)

	delay, err := svc.DelayForRoute(context.Background(), "rt_1")
	require.NoError(t, err)

	assert.Equal(t, "rt_1", delay.RouteID)
	assert.InDelta(t, 8.0, delay.DelayMinutes, 0.001)
}

func TestService_CachesPerRoute(t *testing.T) {
	provider := &stubProvider{delay: &transit.RouteDelay{DelayMinutes: 8}}
	svc := newService(provider, time.Minute)
	ctx := context.Background()

	_, err := svc.DelayForRoute(ctx, "rt_1")
	require.NoError(t, err)
	_, err = svc.DelayForRoute(ctx, "rt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)

	// A different route is a separate cache entry.
	_, err = svc.DelayForRoute(ctx, "rt_2")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, 2, svc.CacheStats().RouteCacheEntries)
}

func TestService_ServesStaleOnProviderError(t *testing.T) {
	provider := &stubProvider{delay: &transit.RouteDelay{DelayMinutes: 8}}
	// Zero-ish TTL so the next read goes back to the provider.
	svc := newService(provider, time.Nanosecond)
	ctx := context.Background()

	_, err := svc.DelayForRoute(ctx, "rt_1")
	require.NoError(t, err)

	provider.err = errors.New("feed down")
	time.Sleep(time.Millisecond)

	delay, err := svc.DelayForRoute(ctx, "rt_1")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, delay.DelayMinutes, 0.001)
}

func TestService_ErrorWithoutStaleData(t *testing.T) {
	provider := &stubProvider{err: errors.New("feed down")}
	svc := newService(provider, time.Minute)

	_, err := svc.DelayForRoute(context.Background(), "rt_1")
	assert.ErrorIs(t, err, transit.ErrProviderUnavailable)
}

func TestService_DelayMinutes(t *testing.T) {
	provider := &stubProvider{delay: &transit.RouteDelay{DelayMinutes: -4}}
	svc := newService(provider, time.Minute)

	minutes, err := svc.DelayMinutes(context.Background(), "rt_1")
	require.NoError(t, err)
	assert.InDelta(t, -4.0, minutes, 0.001)
}

func TestService_InvalidateCache(t *testing.T) {
	provider := &stubProvider{delay: &transit.RouteDelay{DelayMinutes: 8}}
	svc := newService(provider, time.Minute)
	ctx := context.Background()

	_, err := svc.DelayForRoute(ctx, "rt_1")
	require.NoError(t, err)

	svc.InvalidateCache()
	assert.Equal(t, 0, svc.CacheStats().RouteCacheEntries)

	_, err = svc.DelayForRoute(ctx, "rt_1")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}
