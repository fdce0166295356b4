// Package geocode wraps the Google Geocoding API behind a stable
// request/response contract with optional response caching.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/open-supply/facility-registry/internal/db"
	"github.com/open-supply/facility-registry/internal/resilience"
)

// ErrUnavailable indicates the provider could not be reached or
// returned a server-side failure. Safe to retry later.
var ErrUnavailable = eris.New("geocode: provider unavailable")

// ErrNoResult indicates the provider returned zero matches for the
// address. Not retryable without changing the input.
var ErrNoResult = eris.New("geocode: no results for address")

// Request is an address to geocode, scoped to a country.
type Request struct {
	Address     string
	CountryCode string
}

// Result holds the geocoding output. Raw is the full provider response,
// retained opaquely for audit storage.
type Result struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
	Raw              json.RawMessage
}

// Client geocodes addresses.
type Client interface {
	Geocode(ctx context.Context, req Request) (*Result, error)
}

// Option configures the client.
type Option func(*googleClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *googleClient) {
		g.httpClient = hc
	}
}

// WithBaseURL overrides the provider endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(g *googleClient) {
		g.baseURL = u
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(g *googleClient) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithCache enables the Postgres response cache. A ttlDays of zero
// means cached responses never expire.
func WithCache(pool db.Pool, ttlDays int) Option {
	return func(g *googleClient) {
		g.pool = pool
		g.cacheTTLDays = ttlDays
	}
}

// WithRetry overrides the retry policy for provider calls.
func WithRetry(cfg resilience.Config) Option {
	return func(g *googleClient) {
		g.retry = cfg
	}
}

type googleClient struct {
	httpClient   *http.Client
	key          string
	baseURL      string
	limiter      *rate.Limiter
	retry        resilience.Config
	pool         db.Pool
	cacheTTLDays int
}

// NewClient creates a geocoding Client backed by the Google Geocoding
// API.
func NewClient(apiKey string, opts ...Option) Client {
	g := &googleClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		key:        apiKey,
		baseURL:    googleGeocodeURL,
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode geocodes a single address, consulting the cache first when
// configured.
func (g *googleClient) Geocode(ctx context.Context, req Request) (*Result, error) {
	key := cacheKey(req)

	if g.pool != nil {
		if cached, hit, err := g.checkCache(ctx, key); err == nil && hit {
			if cached == nil {
				return nil, eris.Wrapf(ErrNoResult, "%q", req.Address)
			}
			return cached, nil
		}
	}

	retryCfg := g.retry
	retryCfg.ShouldRetry = func(err error) bool { return errors.Is(err, ErrUnavailable) }
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.Logger("google", "geocode")
	}
	result, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Result, error) {
		return g.geocodeGoogle(ctx, req)
	})
	if err != nil {
		if g.pool != nil && errors.Is(err, ErrNoResult) {
			_ = g.storeCache(ctx, key, nil)
		}
		return nil, err
	}

	if g.pool != nil {
		_ = g.storeCache(ctx, key, result)
	}
	return result, nil
}
