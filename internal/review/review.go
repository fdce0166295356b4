// Package review processes human confirm/reject decisions on pending
// matches. Each decision executes as a single transaction holding a row
// lock on the item, so concurrent decisions on the same item cannot
// both land.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/store"
)

// ErrInvalidState indicates the item or match is not in a reviewable
// status.
var ErrInvalidState = eris.New("review: not in reviewable status")

const stageReview = "review"

// Reviewer applies confirm/reject decisions.
type Reviewer struct {
	store store.Store
}

// New creates a Reviewer.
func New(st store.Store) *Reviewer {
	return &Reviewer{store: st}
}

// Confirm accepts the given pending match: it becomes CONFIRMED, all
// sibling matches become REJECTED, and the item binds to the match's
// facility with status CONFIRMED_MATCH.
func (r *Reviewer) Confirm(ctx context.Context, orgID, itemID, matchID string) error {
	return r.store.WithTx(ctx, func(tx store.Store) error {
		started := time.Now().UTC()

		item, chosen, siblings, err := r.loadPending(ctx, tx, orgID, itemID, matchID)
		if err != nil {
			return err
		}

		if err := tx.UpdateMatchStatus(ctx, chosen.ID, model.MatchStatusConfirmed); err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID == chosen.ID || sibling.Status != model.MatchStatusPending {
				continue
			}
			if err := tx.UpdateMatchStatus(ctx, sibling.ID, model.MatchStatusRejected); err != nil {
				return err
			}
		}

		item.FacilityID = chosen.FacilityID
		item.Status = model.ItemStatusConfirmedMatch
		appendDecision(item, started, "confirm", chosen.ID, chosen.FacilityID)

		zap.L().Info("match confirmed",
			zap.String("item_id", item.ID),
			zap.String("match_id", chosen.ID),
			zap.String("facility_id", chosen.FacilityID),
		)
		return tx.UpdateItem(ctx, item)
	})
}

// Reject declines the given pending match. When it was the last pending
// match, a brand-new facility is created from the item's own fields and
// the item binds to it; otherwise the item stays in POTENTIAL_MATCH
// awaiting further review.
func (r *Reviewer) Reject(ctx context.Context, orgID, itemID, matchID string) error {
	return r.store.WithTx(ctx, func(tx store.Store) error {
		started := time.Now().UTC()

		item, chosen, siblings, err := r.loadPending(ctx, tx, orgID, itemID, matchID)
		if err != nil {
			return err
		}

		if err := tx.UpdateMatchStatus(ctx, chosen.ID, model.MatchStatusRejected); err != nil {
			return err
		}

		pendingLeft := 0
		for _, sibling := range siblings {
			if sibling.ID != chosen.ID && sibling.Status == model.MatchStatusPending {
				pendingLeft++
			}
		}
		if pendingLeft > 0 {
			appendDecision(item, started, "reject", chosen.ID, "")
			zap.L().Info("match rejected, review continues",
				zap.String("item_id", item.ID),
				zap.String("match_id", chosen.ID),
				zap.Int("pending_left", pendingLeft),
			)
			return tx.UpdateItem(ctx, item)
		}

		// Last pending match rejected: fall back to a new facility.
		facility, err := r.fallbackFacility(ctx, tx, item)
		if err != nil {
			return err
		}
		confirmed := &model.Match{
			ID:         uuid.New().String(),
			ItemID:     item.ID,
			FacilityID: facility.ID,
			Status:     model.MatchStatusConfirmed,
			Confidence: 1.0,
			Results:    model.MatchResults{Version: "0", MatchType: "review"},
		}
		if err := tx.CreateMatch(ctx, confirmed); err != nil {
			return eris.Wrap(err, "review: create fallback match")
		}

		item.FacilityID = facility.ID
		item.Status = model.ItemStatusConfirmedMatch
		appendDecision(item, started, "reject", chosen.ID, facility.ID)

		zap.L().Info("all matches rejected, new facility created",
			zap.String("item_id", item.ID),
			zap.String("facility_id", facility.ID),
		)
		return tx.UpdateItem(ctx, item)
	})
}

// loadPending locks the item, checks the caller's scope, and returns
// the chosen match plus all of the item's matches.
func (r *Reviewer) loadPending(ctx context.Context, tx store.Store, orgID, itemID, matchID string) (*model.Item, *model.Match, []*model.Match, error) {
	item, err := tx.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, nil, nil, err
	}

	list, err := tx.GetList(ctx, item.ListID)
	if err != nil {
		return nil, nil, nil, err
	}
	if list.OrganizationID != orgID {
		// Out of the caller's scope reads the same as absent.
		return nil, nil, nil, eris.Wrapf(store.ErrNotFound, "item %s", itemID)
	}

	if item.Status != model.ItemStatusPotentialMatch {
		return nil, nil, nil, eris.Wrapf(ErrInvalidState, "item %s is %s", itemID, item.Status)
	}

	chosen, err := tx.GetMatch(ctx, matchID)
	if err != nil {
		return nil, nil, nil, err
	}
	if chosen.ItemID != item.ID {
		return nil, nil, nil, eris.Wrapf(store.ErrNotFound, "match %s for item %s", matchID, itemID)
	}
	if chosen.Status != model.MatchStatusPending {
		return nil, nil, nil, eris.Wrapf(ErrInvalidState, "match %s is %s", matchID, chosen.Status)
	}

	matches, err := tx.ListMatches(ctx, itemID)
	if err != nil {
		return nil, nil, nil, err
	}
	return item, chosen, matches, nil
}

// fallbackFacility creates a facility from the item's own fields. A
// duplicate collision means an identical facility appeared since the
// matches were proposed; reuse it.
func (r *Reviewer) fallbackFacility(ctx context.Context, tx store.Store, item *model.Item) (*model.Facility, error) {
	facility := &model.Facility{
		ID:            uuid.New().String(),
		Name:          item.Name,
		Address:       item.GeocodedAddress,
		CountryCode:   item.CountryCode,
		CreatedFromID: item.ID,
	}
	if item.GeocodedPoint != nil {
		facility.Location = *item.GeocodedPoint
	}

	err := tx.CreateFacility(ctx, facility)
	if errors.Is(err, store.ErrDuplicateFacility) {
		facility, err = tx.FindFacility(ctx, item.CountryCode, item.Name, item.GeocodedAddress)
	}
	if err != nil {
		return nil, eris.Wrap(err, "review: fallback facility")
	}
	return facility, nil
}

func appendDecision(item *model.Item, started time.Time, action, matchID, facilityID string) {
	payload := map[string]string{"action": action, "match_id": matchID}
	if facilityID != "" {
		payload["facility_id"] = facilityID
	}
	data, _ := json.Marshal(payload)
	item.AppendLog(model.LogEntry{
		Stage:      stageReview,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Data:       data,
	})
}
