package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/process"
	"github.com/open-supply/facility-registry/internal/store"
	"github.com/open-supply/facility-registry/internal/store/storetest"
)

func newList(t *testing.T, st *storetest.Memory) *model.List {
	t.Helper()
	list := &model.List{
		ID:             uuid.New().String(),
		OrganizationID: "org-1",
		Name:           "batch list",
		Header:         "country,name,address",
		IsActive:       true,
	}
	require.NoError(t, st.CreateList(context.Background(), list))
	return list
}

func addItem(t *testing.T, st *storetest.Memory, list *model.List, rowIndex int, raw string, status model.ItemStatus) *model.Item {
	t.Helper()
	item := &model.Item{
		ID:       uuid.New().String(),
		ListID:   list.ID,
		RowIndex: rowIndex,
		RawData:  raw,
		Status:   status,
	}
	require.NoError(t, st.CreateItems(context.Background(), []*model.Item{item}))
	return item
}

func TestRun_TalliesSuccessAndFailure(t *testing.T) {
	st := storetest.NewMemory()
	coord := New(st, nil)
	list := newList(t, st)

	// Seven parseable rows, three with an unresolvable country.
	for i := 0; i < 7; i++ {
		addItem(t, st, list, i, fmt.Sprintf("US,Factory %d,123 Main St", i), model.ItemStatusUploaded)
	}
	for i := 7; i < 10; i++ {
		addItem(t, st, list, i, fmt.Sprintf("Atlantis,Factory %d,123 Main St", i), model.ItemStatusUploaded)
	}

	result, err := coord.Run(context.Background(), "parse", list.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Success)
	assert.Equal(t, 3, result.Failure)
	assert.Equal(t, 0, result.Skipped)

	counts, err := st.CountItemsByStatus(context.Background(), list.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, counts[model.ItemStatusParsed])
	assert.Equal(t, 3, counts[model.ItemStatusError])
}

func TestRun_UnknownAction(t *testing.T) {
	st := storetest.NewMemory()
	coord := New(st, nil)
	list := newList(t, st)
	addItem(t, st, list, 0, "US,Acme,123 Main St", model.ItemStatusUploaded)

	_, err := coord.Run(context.Background(), "transmogrify", list.ID, nil)
	require.ErrorIs(t, err, process.ErrUnknownStage)

	// Items untouched.
	counts, err := st.CountItemsByStatus(context.Background(), list.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.ItemStatusUploaded])
}

func TestRun_ListNotFound(t *testing.T) {
	st := storetest.NewMemory()
	coord := New(st, nil)

	_, err := coord.Run(context.Background(), "parse", uuid.New().String(), nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_RowIndexShard(t *testing.T) {
	st := storetest.NewMemory()
	coord := New(st, nil)
	list := newList(t, st)
	for i := 0; i < 3; i++ {
		addItem(t, st, list, i, fmt.Sprintf("US,Factory %d,123 Main St", i), model.ItemStatusUploaded)
	}

	row := 1
	result, err := coord.Run(context.Background(), "parse", list.ID, &row)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 0, result.Failure)

	counts, err := st.CountItemsByStatus(context.Background(), list.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.ItemStatusParsed])
	assert.Equal(t, 2, counts[model.ItemStatusUploaded])
}

func TestRun_SkipsItemsInWrongStatus(t *testing.T) {
	st := storetest.NewMemory()
	coord := New(st, nil)
	list := newList(t, st)
	addItem(t, st, list, 0, "US,Acme,123 Main St", model.ItemStatusUploaded)
	skipped := addItem(t, st, list, 1, "US,Other,456 Oak Ave", model.ItemStatusConfirmedMatch)

	result, err := coord.Run(context.Background(), "parse", list.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 0, result.Failure)
	assert.Equal(t, 1, result.Skipped)

	// The already-finished item is left exactly as it was.
	after, err := st.GetItem(context.Background(), skipped.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusConfirmedMatch, after.Status)
	assert.Empty(t, after.ProcessingLog)
}
