package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/open-supply/facility-registry/internal/store"
	"github.com/open-supply/facility-registry/pkg/geocode"
)

func initStore(ctx context.Context) (*store.PostgresStore, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("database URL is required (FACREG_STORE_DATABASE_URL)")
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.Pool.MaxConns,
		MinConns: cfg.Store.Pool.MinConns,
	})
}

func initGeocoder(st *store.PostgresStore) (geocode.Client, error) {
	if cfg.Geocoder.GoogleKey == "" {
		return nil, eris.New("geocoder API key is required (FACREG_GEOCODER_GOOGLE_API_KEY)")
	}

	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocoder.RateLimit),
		geocode.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Geocoder.TimeoutSecs) * time.Second,
		}),
	}
	if cfg.Geocoder.CacheEnabled {
		opts = append(opts, geocode.WithCache(st.Pool(), cfg.Geocoder.CacheTTLDays))
	}
	return geocode.NewClient(cfg.Geocoder.GoogleKey, opts...), nil
}
