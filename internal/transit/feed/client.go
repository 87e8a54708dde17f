package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/transit"
)

const (
	// ProviderName identifies this delay feed provider.
	ProviderName = "transitfeed"
)

// ClientConfig holds configuration for the delay feed client.
type ClientConfig struct {
	// BaseURL is the feed API base URL (required).
	BaseURL string

	// APIKey authenticates against the feed (required).
	APIKey string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches live route delay data from the transit feed API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new delay feed client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// DelayForRoute fetches the current delay signal for a route.
func (c *Client) DelayForRoute(ctx context.Context, routeID string) (*transit.RouteDelay, error) {
	endpoint := fmt.Sprintf("%s/routes/%s/delay", c.baseURL, url.PathEscape(routeID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var feedResp delayResponse
	if err := json.NewDecoder(resp.Body).Decode(&feedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return c.toRouteDelay(routeID, &feedResp), nil
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// toRouteDelay converts a feed response to the domain model.
func (c *Client) toRouteDelay(routeID string, d *delayResponse) *transit.RouteDelay {
	delay := &transit.RouteDelay{
		RouteID:      routeID,
		DelayMinutes: d.DelayMinutes,
		Disrupted:    d.Disrupted,
		Cause:        d.Cause,
		Provider:     ProviderName,
		FetchedAt:    time.Now(),
	}

	if d.ObservedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, d.ObservedAt); err == nil {
			delay.FetchedAt = parsed
		}
	}

	return delay
}

// Feed API response structures.

type delayResponse struct {
	RouteID      string  `json:"routeId"`
	DelayMinutes float64 `json:"delayMinutes"`
	Disrupted    bool    `json:"disrupted"`
	Cause        string  `json:"cause"`
	ObservedAt   string  `json:"observedAt"`
}
