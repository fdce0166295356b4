package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address and country
// for cache lookup.
func cacheKey(req Request) string {
	normalized := fmt.Sprintf("%s|%s",
		strings.ToLower(strings.TrimSpace(req.Address)),
		strings.ToUpper(strings.TrimSpace(req.CountryCode)),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up a cached geocode result, respecting TTL if
// configured. A cached non-match comes back as (nil, true, nil) so the
// caller can skip the provider.
func (g *googleClient) checkCache(ctx context.Context, key string) (*Result, bool, error) {
	var lat, lng float64
	var geocodedAddress *string
	var response []byte
	var matched bool

	query := "SELECT latitude, longitude, geocoded_address, response, matched FROM geocode_cache WHERE address_hash = $1"
	if g.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", g.cacheTTLDays)
	}

	row := g.pool.QueryRow(ctx, query, key)
	if err := row.Scan(&lat, &lng, &geocodedAddress, &response, &matched); err != nil {
		return nil, false, err // no row or scan error, caller falls through to the provider
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix), zap.Bool("matched", matched))

	if !matched {
		return nil, true, nil
	}
	r := &Result{Lat: lat, Lng: lng, Raw: response}
	if geocodedAddress != nil {
		r.FormattedAddress = *geocodedAddress
	}
	return r, true, nil
}

// storeCache inserts a geocode result (match or non-match) into the cache.
func (g *googleClient) storeCache(ctx context.Context, key string, result *Result) error {
	var lat, lng float64
	var geocodedAddress any
	var response any
	matched := result != nil
	if result != nil {
		lat, lng = result.Lat, result.Lng
		if result.FormattedAddress != "" {
			geocodedAddress = result.FormattedAddress
		}
		if len(result.Raw) > 0 {
			response = []byte(result.Raw)
		}
	}

	_, err := g.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, geocoded_address, response, matched, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			geocoded_address = EXCLUDED.geocoded_address,
			response = EXCLUDED.response,
			matched = EXCLUDED.matched,
			cached_at = now()`,
		key, lat, lng, geocodedAddress, response, matched,
	)
	if err != nil {
		return eris.Wrap(err, "geocode: store cache")
	}
	return nil
}
