package process

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/store/storetest"
	"github.com/open-supply/facility-registry/pkg/geocode"
)

// --- Geocoder mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, req geocode.Request) (*geocode.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- Fixtures ---

func newTestList(t *testing.T, st *storetest.Memory, header string) *model.List {
	t.Helper()
	list := &model.List{
		ID:             uuid.New().String(),
		OrganizationID: "org-1",
		Name:           "test list",
		Header:         header,
		IsActive:       true,
	}
	require.NoError(t, st.CreateList(context.Background(), list))
	return list
}

func newTestItem(t *testing.T, st *storetest.Memory, list *model.List, rowIndex int, raw string, status model.ItemStatus) *model.Item {
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
