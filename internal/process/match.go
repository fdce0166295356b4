package process

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/store"
)

// matchVersion tags matches with the resolution algorithm that produced
// them, so a future ranked matcher can coexist with v0 records.
const (
	matchVersion = "0"
	matchExact   = "exact"
)

// match resolves the item to a canonical facility: exact lookup on
// (country, name, geocoded address), creating the facility when no
// match exists. v0 policy binds the oldest facility deterministically
// when one or more match; the automatic path never emits PENDING
// matches.
func (p *Processor) match(ctx context.Context, _ *model.List, item *model.Item) (json.RawMessage, error) {
	facility, m, err := p.resolve(ctx, item)
	if err != nil {
		return nil, err
	}

	item.FacilityID = facility.ID
	item.Status = model.ItemStatusMatched

	data, err := json.Marshal(map[string]any{
		"facility_id": facility.ID,
		"match_id":    m.ID,
		"confidence":  m.Confidence,
		"match_type":  m.Results.MatchType,
	})
	if err != nil {
		return nil, eris.Wrap(err, "process: marshal match data")
	}
	return data, nil
}

// resolve finds or creates the facility and records the match. A
// unique-constraint collision on create means a concurrent worker won
// the race to create the same canonical facility; the insert is retried
// as a lookup.
func (p *Processor) resolve(ctx context.Context, item *model.Item) (*model.Facility, *model.Match, error) {
	facility, err := p.store.FindFacility(ctx, item.CountryCode, item.Name, item.GeocodedAddress)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		facility = &model.Facility{
			ID:            uuid.New().String(),
			Name:          item.Name,
			Address:       item.GeocodedAddress,
			CountryCode:   item.CountryCode,
			CreatedFromID: item.ID,
		}
		if item.GeocodedPoint != nil {
			facility.Location = *item.GeocodedPoint
		}

		createErr := p.store.CreateFacility(ctx, facility)
		if errors.Is(createErr, store.ErrDuplicateFacility) {
			zap.L().Debug("facility create raced, retrying as lookup",
				zap.String("item_id", item.ID),
				zap.String("country", item.CountryCode),
			)
			facility, createErr = p.store.FindFacility(ctx, item.CountryCode, item.Name, item.GeocodedAddress)
		}
		if createErr != nil {
			return nil, nil, eris.Wrap(createErr, "process: create facility")
		}
	default:
		return nil, nil, eris.Wrap(err, "process: find facility")
	}

	m := &model.Match{
		ID:         uuid.New().String(),
		ItemID:     item.ID,
		FacilityID: facility.ID,
		Status:     model.MatchStatusAutomatic,
		Confidence: 1.0,
		Results: model.MatchResults{
			Version:   matchVersion,
			MatchType: matchExact,
		},
	}
	if err := p.store.CreateMatch(ctx, m); err != nil {
		return nil, nil, eris.Wrap(err, "process: create match")
	}
	return facility, m, nil
}
