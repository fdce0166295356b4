// Package batch drives a processing stage across every item of a list
// in one transaction and reports how many items came out healthy.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/process"
	"github.com/open-supply/facility-registry/internal/store"
	"github.com/open-supply/facility-registry/pkg/geocode"
)

// Result tallies one batch run. An item counts as a failure when it
// finished the run in ERROR status; items in the wrong predecessor
// status are left untouched and reported as skipped, so the three
// counts always cover every item the run saw.
type Result struct {
	Success int
	Failure int
	Skipped int
}

// Coordinator runs processing stages over whole lists.
type Coordinator struct {
	store    store.Store
	geocoder geocode.Client
}

// New creates a Coordinator.
func New(st store.Store, geocoder geocode.Client) *Coordinator {
	return &Coordinator{store: st, geocoder: geocoder}
}

// Run executes the named stage for every item of the list, or for the
// single row when rowIndex is set. The whole batch commits or rolls
// back together: a persistence error aborts everything, while per-item
// stage failures are recorded on the items and tallied.
func (c *Coordinator) Run(ctx context.Context, action string, listID string, rowIndex *int) (*Result, error) {
	stage, err := process.ParseStage(action)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &Result{}

	err = c.store.WithTx(ctx, func(tx store.Store) error {
		list, err := tx.GetList(ctx, listID)
		if err != nil {
			return err
		}

		items, err := tx.ListItems(ctx, listID, rowIndex)
		if err != nil {
			return eris.Wrapf(err, "batch: list items for %s", listID)
		}

		proc := process.New(tx, c.geocoder)
		for _, item := range items {
			err := proc.Run(ctx, stage, list, item)
			switch {
			case errors.Is(err, process.ErrInvalidState):
				// Wrong predecessor status. Someone else's problem,
				// not this batch's.
				zap.L().Debug("skipping item",
					zap.String("item_id", item.ID),
					zap.String("status", string(item.Status)),
				)
				result.Skipped++
				continue
			case err != nil:
				return err
			}
			if item.Status == model.ItemStatusError {
				result.Failure++
			} else {
				result.Success++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("batch complete",
		zap.String("action", action),
		zap.String("list_id", listID),
		zap.Int("success", result.Success),
		zap.Int("failure", result.Failure),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}
