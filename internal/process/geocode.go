package process

import (
	"context"
	"encoding/json"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/pkg/geocode"
)

// geocode resolves the item's parsed address to a coordinate and a
// provider-normalized address. The raw provider response becomes the
// audit record's data payload.
func (p *Processor) geocode(ctx context.Context, _ *model.List, item *model.Item) (json.RawMessage, error) {
	result, err := p.geocoder.Geocode(ctx, geocode.Request{
		Address:     item.Address,
		CountryCode: item.CountryCode,
	})
	if err != nil {
		return nil, err
	}

	item.GeocodedAddress = result.FormattedAddress
	item.GeocodedPoint = &model.Point{Lat: result.Lat, Lng: result.Lng}
	item.Status = model.ItemStatusGeocoded
	return result.Raw, nil
}
