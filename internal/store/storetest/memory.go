// Package storetest provides an in-memory Store for unit tests of the
// processing, review, and batch packages.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/store"
)

// Memory is an in-memory store.Store. It enforces the same facility
// identity uniqueness as the Postgres schema. Transactions are not
// isolated: WithTx simply runs fn against the same state, which is
// enough for single-goroutine tests.
type Memory struct {
	mu         sync.Mutex
	lists      map[string]*model.List
	items      map[string]*model.Item
	facilities []*model.Facility
	matches    []*model.Match

	// Hooks for fault injection. A hook runs before the default
	// behavior, outside the store lock (so it may call back into the
	// store); a non-nil error is returned as-is.
	OnCreateFacility func(*model.Facility) error
	OnUpdateItem     func(*model.Item) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		lists: make(map[string]*model.List),
		items: make(map[string]*model.Item),
	}
}

func (m *Memory) CreateList(_ context.Context, list *model.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if list.ReplacesID != "" && list.IsActive {
		for _, l := range m.lists {
			if l.ReplacesID == list.ReplacesID && l.IsActive {
				return eris.Wrapf(store.ErrListReplaced, "list %s", list.ReplacesID)
			}
		}
	}
	cp := *list
	m.lists[list.ID] = &cp
	return nil
}

func (m *Memory) GetList(_ context.Context, id string) (*model.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "list %s", id)
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) CreateItems(_ context.Context, items []*model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		cp := cloneItem(it)
		m.items[it.ID] = cp
	}
	return nil
}

func (m *Memory) GetItem(_ context.Context, id string) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "item %s", id)
	}
	return cloneItem(it), nil
}

func (m *Memory) GetItemForUpdate(ctx context.Context, id string) (*model.Item, error) {
	return m.GetItem(ctx, id)
}

func (m *Memory) ListItems(_ context.Context, listID string, rowIndex *int) ([]*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*model.Item
	for _, it := range m.items {
		if it.ListID != listID {
			continue
		}
		if rowIndex != nil && it.RowIndex != *rowIndex {
			continue
		}
		items = append(items, cloneItem(it))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RowIndex < items[j].RowIndex })
	return items, nil
}

func (m *Memory) UpdateItem(_ context.Context, item *model.Item) error {
	if m.OnUpdateItem != nil {
		if err := m.OnUpdateItem(item); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return eris.Wrapf(store.ErrNotFound, "item %s", item.ID)
	}
	item.UpdatedAt = time.Now().UTC()
	m.items[item.ID] = cloneItem(item)
	return nil
}

func (m *Memory) CountItemsByStatus(_ context.Context, listID string) (map[model.ItemStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.ItemStatus]int)
	for _, it := range m.items {
		if it.ListID == listID {
			counts[it.Status]++
		}
	}
	return counts, nil
}

func (m *Memory) FindFacility(_ context.Context, countryCode, name, address string) (*model.Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// facilities is insertion-ordered, so the first hit is the oldest.
	for _, f := range m.facilities {
		if identityEqual(f, countryCode, name, address) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, eris.Wrapf(store.ErrNotFound, "facility (%s, %s)", countryCode, name)
}

func (m *Memory) CreateFacility(_ context.Context, f *model.Facility) error {
	if m.OnCreateFacility != nil {
		if err := m.OnCreateFacility(f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.facilities {
		if identityEqual(existing, f.CountryCode, f.Name, f.Address) {
			return eris.Wrapf(store.ErrDuplicateFacility, "(%s, %s)", f.CountryCode, f.Name)
		}
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	cp := *f
	m.facilities = append(m.facilities, &cp)
	return nil
}

func (m *Memory) CreateMatch(_ context.Context, match *model.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now().UTC()
	}
	cp := *match
	m.matches = append(m.matches, &cp)
	return nil
}

func (m *Memory) GetMatch(_ context.Context, id string) (*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, match := range m.matches {
		if match.ID == id {
			cp := *match
			return &cp, nil
		}
	}
	return nil, eris.Wrapf(store.ErrNotFound, "match %s", id)
}

func (m *Memory) ListMatches(_ context.Context, itemID string) ([]*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []*model.Match
	for _, match := range m.matches {
		if match.ItemID == itemID {
			cp := *match
			matches = append(matches, &cp)
		}
	}
	return matches, nil
}

func (m *Memory) UpdateMatchStatus(_ context.Context, id string, status model.MatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, match := range m.matches {
		if match.ID == id {
			match.Status = status
			return nil
		}
	}
	return eris.Wrapf(store.ErrNotFound, "match %s", id)
}

func (m *Memory) WithTx(_ context.Context, fn func(store.Store) error) error {
	return fn(m)
}

func (m *Memory) Migrate(context.Context) error { return nil }
func (m *Memory) Close() error                  { return nil }

// Facilities returns a snapshot of all facilities, oldest first.
func (m *Memory) Facilities() []*model.Facility {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Facility, 0, len(m.facilities))
	for _, f := range m.facilities {
		cp := *f
		out = append(out, &cp)
	}
	return out
}

func identityEqual(f *model.Facility, countryCode, name, address string) bool {
	return f.CountryCode == countryCode &&
		strings.EqualFold(f.Name, name) &&
		strings.EqualFold(f.Address, address)
}

func cloneItem(it *model.Item) *model.Item {
	cp := *it
	if it.GeocodedPoint != nil {
		p := *it.GeocodedPoint
		cp.GeocodedPoint = &p
	}
	cp.ProcessingLog = append([]model.LogEntry(nil), it.ProcessingLog...)
	return &cp
}
