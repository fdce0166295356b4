// Package store defines the persistence interface for lists, items,
// facilities, and matches, with a PostgreSQL implementation.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/open-supply/facility-registry/internal/model"
)

// ErrNotFound indicates a referenced list, item, facility, or match
// does not exist (or is out of the caller's scope).
var ErrNotFound = eris.New("store: not found")

// ErrDuplicateFacility indicates a facility insert collided with the
// identity uniqueness constraint on (country, name, address). Callers
// treat it as "somebody else created it first" and retry as a lookup.
var ErrDuplicateFacility = eris.New("store: facility already exists")

// ErrListReplaced indicates an upload named a predecessor list that has
// already been replaced by another active list.
var ErrListReplaced = eris.New("store: list already replaced")

// Store is the persistence interface for the ingestion pipeline.
type Store interface {
	// Lists
	CreateList(ctx context.Context, list *model.List) error
	GetList(ctx context.Context, id string) (*model.List, error)

	// Items
	CreateItems(ctx context.Context, items []*model.Item) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	// GetItemForUpdate locks the item row for the duration of the
	// enclosing transaction, serializing concurrent review decisions.
	GetItemForUpdate(ctx context.Context, id string) (*model.Item, error)
	// ListItems enumerates a list's items in row order, optionally
	// filtered to a single row index for sharded execution.
	ListItems(ctx context.Context, listID string, rowIndex *int) ([]*model.Item, error)
	UpdateItem(ctx context.Context, item *model.Item) error
	CountItemsByStatus(ctx context.Context, listID string) (map[model.ItemStatus]int, error)

	// Facilities
	// FindFacility looks up the oldest facility with the given
	// identity, matching name and address case-insensitively.
	FindFacility(ctx context.Context, countryCode, name, address string) (*model.Facility, error)
	CreateFacility(ctx context.Context, f *model.Facility) error

	// Matches
	CreateMatch(ctx context.Context, m *model.Match) error
	GetMatch(ctx context.Context, id string) (*model.Match, error)
	ListMatches(ctx context.Context, itemID string) ([]*model.Match, error)
	UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error

	// WithTx runs fn against a transactional view of the store,
	// committing if fn returns nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
