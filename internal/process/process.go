// Package process implements the per-item state machine: the parse,
// geocode, and match stages, each a guarded transition that appends one
// audit record and persists atomically.
package process

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/store"
	"github.com/open-supply/facility-registry/pkg/geocode"
)

// ErrInvalidState indicates a stage was invoked against an item that is
// not in the required predecessor status. The item is left unmodified.
var ErrInvalidState = eris.New("process: item not in required status")

// ErrUnknownStage indicates an unrecognized stage name.
var ErrUnknownStage = eris.New("process: unknown stage")

// Stage is one transition of the item state machine.
type Stage string

const (
	StageParse   Stage = "parse"
	StageGeocode Stage = "geocode"
	StageMatch   Stage = "match"
)

// ParseStage validates a stage name. The set of stages is closed: there
// is no runtime registration.
func ParseStage(name string) (Stage, error) {
	switch Stage(name) {
	case StageParse, StageGeocode, StageMatch:
		return Stage(name), nil
	default:
		return "", eris.Wrapf(ErrUnknownStage, "%q", name)
	}
}

// requiredStatus maps each stage to the exact item status it consumes.
var requiredStatus = map[Stage]model.ItemStatus{
	StageParse:   model.ItemStatusUploaded,
	StageGeocode: model.ItemStatusParsed,
	StageMatch:   model.ItemStatusGeocoded,
}

// Processor runs stage transitions for items.
type Processor struct {
	store    store.Store
	geocoder geocode.Client
}

// New creates a Processor.
func New(st store.Store, geocoder geocode.Client) *Processor {
	return &Processor{store: st, geocoder: geocoder}
}

// stageFunc applies one stage's field mutations to an item, returning
// optional structured data for the audit record. A stageFunc sets the
// item's success status itself; the runner handles the failure path.
type stageFunc func(ctx context.Context, list *model.List, item *model.Item) (json.RawMessage, error)

// Run executes one stage for an item. The stage's field mutations,
// status change, and audit record persist together via a single item
// update; a failing stage leaves the item in ERROR with the failure
// recorded. The returned error is nil for stage-level failures (they
// are captured in the item) and non-nil only for precondition or
// persistence failures.
func (p *Processor) Run(ctx context.Context, stage Stage, list *model.List, item *model.Item) error {
	var fn stageFunc
	switch stage {
	case StageParse:
		fn = p.parse
	case StageGeocode:
		fn = p.geocode
	case StageMatch:
		fn = p.match
	default:
		return eris.Wrapf(ErrUnknownStage, "%q", stage)
	}

	required := requiredStatus[stage]
	if item.Status != required {
		return eris.Wrapf(ErrInvalidState, "%s requires %s, item %s is %s",
			stage, required, item.ID, item.Status)
	}

	started := time.Now().UTC()
	data, stageErr := fn(ctx, list, item)
	finished := time.Now().UTC()

	entry := model.LogEntry{
		Stage:      string(stage),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if stageErr != nil {
		item.Status = model.ItemStatusError
		entry.Error = true
		entry.Message = stageErr.Error()
		zap.L().Warn("stage failed",
			zap.String("stage", string(stage)),
			zap.String("item_id", item.ID),
			zap.Int("row_index", item.RowIndex),
			zap.Error(stageErr),
		)
	} else {
		entry.Data = data
	}
	item.AppendLog(entry)

	if err := p.store.UpdateItem(ctx, item); err != nil {
		return eris.Wrapf(err, "process: persist %s for item %s", stage, item.ID)
	}
	return nil
}
