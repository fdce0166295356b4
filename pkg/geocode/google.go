package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// geocodeGoogle geocodes a single address using the Google Geocoding
// API, restricting results to the requested country.
func (g *googleClient) geocodeGoogle(ctx context.Context, req Request) (*Result, error) {
	if g.key == "" {
		return nil, eris.Wrap(ErrUnavailable, "geocode: google api key not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address":    {req.Address},
		"components": {"country:" + req.CountryCode},
		"key":        {g.key},
	}

	reqURL := g.baseURL + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "geocode: google request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUnavailable, "geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "geocode: google read body: %v", err)
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, eris.Wrapf(ErrNoResult, "%q in %s", req.Address, req.CountryCode)
	default:
		zap.L().Warn("geocode: google error status", zap.String("status", googleResp.Status))
		return nil, eris.Wrapf(ErrUnavailable, "geocode: google status %s", googleResp.Status)
	}
	if len(googleResp.Results) == 0 {
		return nil, eris.Wrapf(ErrNoResult, "%q in %s", req.Address, req.CountryCode)
	}

	first := googleResp.Results[0]
	return &Result{
		Lat:              first.Geometry.Location.Lat,
		Lng:              first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
		Raw:              json.RawMessage(body),
	}, nil
}
