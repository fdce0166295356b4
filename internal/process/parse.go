package process

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/open-supply/facility-registry/internal/country"
	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/rowparse"
)

// parse extracts structured fields from the item's raw row using the
// list's header schema. Fields absent from the schema stay unset. The
// audit record carries the resolved country so reviewers see what the
// free-text value normalized to.
func (p *Processor) parse(_ context.Context, list *model.List, item *model.Item) (json.RawMessage, error) {
	schema, err := rowparse.ParseHeader(list.Header)
	if err != nil {
		return nil, err
	}
	row, err := schema.Parse(item.RawData)
	if err != nil {
		return nil, err
	}

	if row.HasName {
		item.Name = row.Name
	}
	if row.HasAddress {
		item.Address = row.Address
	}

	var data json.RawMessage
	if row.HasCountry {
		item.CountryCode = row.CountryCode
		data, err = json.Marshal(map[string]string{
			"country_code": row.CountryCode,
			"country_name": country.Name(row.CountryCode),
		})
		if err != nil {
			return nil, eris.Wrap(err, "process: marshal parse data")
		}
	}
	item.Status = model.ItemStatusParsed
	return data, nil
}
