package review

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/store"
	"github.com/open-supply/facility-registry/internal/store/storetest"
)

type fixture struct {
	st      *storetest.Memory
	rev     *Reviewer
	item    *model.Item
	matchA  *model.Match
	matchB  *model.Match
	facA    *model.Facility
	facB    *model.Facility
}

// newFixture builds an item in POTENTIAL_MATCH with two pending
// candidate matches against two existing facilities.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.NewMemory()
	ctx := context.Background()

	list := &model.List{
		ID:             uuid.New().String(),
		OrganizationID: "org-1",
		Name:           "test list",
		Header:         "country,name,address",
		IsActive:       true,
	}
	require.NoError(t, st.CreateList(ctx, list))

	item := &model.Item{
		ID:              uuid.New().String(),
		ListID:          list.ID,
		RowIndex:        0,
		RawData:         "US,Acme Factory,123 Main St",
		Status:          model.ItemStatusPotentialMatch,
		CountryCode:     "US",
		Name:            "Acme Factory",
		Address:         "123 Main St",
		GeocodedAddress: "123 Main St, Anytown, US",
		GeocodedPoint:   &model.Point{Lat: 40.0, Lng: -75.0},
	}
	require.NoError(t, st.CreateItems(ctx, []*model.Item{item}))

	facA := &model.Facility{
		ID:          uuid.New().String(),
		Name:        "Acme Fctry",
		Address:     "123 Main Street, Anytown, US",
		CountryCode: "US",
	}
	facB := &model.Facility{
		ID:          uuid.New().String(),
		Name:        "Acme Manufacturing",
		Address:     "125 Main St, Anytown, US",
		CountryCode: "US",
	}
	require.NoError(t, st.CreateFacility(ctx, facA))
	require.NoError(t, st.CreateFacility(ctx, facB))

	matchA := &model.Match{
		ID:         uuid.New().String(),
		ItemID:     item.ID,
		FacilityID: facA.ID,
		Status:     model.MatchStatusPending,
		Confidence: 0.8,
		Results:    model.MatchResults{Version: "0", MatchType: "fuzzy"},
	}
	matchB := &model.Match{
		ID:         uuid.New().String(),
		ItemID:     item.ID,
		FacilityID: facB.ID,
		Status:     model.MatchStatusPending,
		Confidence: 0.6,
		Results:    model.MatchResults{Version: "0", MatchType: "fuzzy"},
	}
	require.NoError(t, st.CreateMatch(ctx, matchA))
	require.NoError(t, st.CreateMatch(ctx, matchB))

	return &fixture{
		st:     st,
		rev:    New(st),
		item:   item,
		matchA: matchA,
		matchB: matchB,
		facA:   facA,
		facB:   facB,
	}
}

func (f *fixture) reload(t *testing.T) (*model.Item, []*model.Match) {
	t.Helper()
	ctx := context.Background()
	item, err := f.st.GetItem(ctx, f.item.ID)
	require.NoError(t, err)
	matches, err := f.st.ListMatches(ctx, f.item.ID)
	require.NoError(t, err)
	return item, matches
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.rev.Confirm(context.Background(), "org-1", f.item.ID, f.matchA.ID))

	item, matches := f.reload(t)
	assert.Equal(t, model.ItemStatusConfirmedMatch, item.Status)
	assert.Equal(t, f.facA.ID, item.FacilityID)

	// The chosen match is confirmed; its sibling is rejected.
	byID := map[string]model.MatchStatus{}
	for _, m := range matches {
		byID[m.ID] = m.Status
	}
	assert.Equal(t, model.MatchStatusConfirmed, byID[f.matchA.ID])
	assert.Equal(t, model.MatchStatusRejected, byID[f.matchB.ID])

	entry := item.LogFor("review")
	require.NotNil(t, entry)
	assert.False(t, entry.Error)
	assert.Contains(t, string(entry.Data), `"confirm"`)
}

func TestConfirm_WrongOrganization(t *testing.T) {
	f := newFixture(t)

	err := f.rev.Confirm(context.Background(), "org-2", f.item.ID, f.matchA.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Nothing moved.
	item, matches := f.reload(t)
	assert.Equal(t, model.ItemStatusPotentialMatch, item.Status)
	for _, m := range matches {
		assert.Equal(t, model.MatchStatusPending, m.Status)
	}
}

func TestConfirm_UnknownMatch(t *testing.T) {
	f := newFixture(t)

	err := f.rev.Confirm(context.Background(), "org-1", f.item.ID, uuid.New().String())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirm_MatchBelongsToOtherItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &model.Item{
		ID:       uuid.New().String(),
		ListID:   f.item.ListID,
		RowIndex: 1,
		RawData:  "US,Other Factory,456 Oak Ave",
		Status:   model.ItemStatusPotentialMatch,
	}
	require.NoError(t, f.st.CreateItems(ctx, []*model.Item{other}))

	err := f.rev.Confirm(ctx, "org-1", other.ID, f.matchA.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// The mismatched match is untouched.
	m, err := f.st.GetMatch(ctx, f.matchA.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusPending, m.Status)
}

func TestConfirm_ItemNotReviewable(t *testing.T) {
	f := newFixture(t)
	f.item.Status = model.ItemStatusGeocoded
	require.NoError(t, f.st.UpdateItem(context.Background(), f.item))

	err := f.rev.Confirm(context.Background(), "org-1", f.item.ID, f.matchA.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirm_MatchAlreadyDecided(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.UpdateMatchStatus(context.Background(), f.matchA.ID, model.MatchStatusRejected))

	err := f.rev.Confirm(context.Background(), "org-1", f.item.ID, f.matchA.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReject_OtherPendingRemains(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.rev.Reject(context.Background(), "org-1", f.item.ID, f.matchA.ID))

	item, matches := f.reload(t)
	// Review is not over: the item stays put, unbound.
	assert.Equal(t, model.ItemStatusPotentialMatch, item.Status)
	assert.Empty(t, item.FacilityID)

	byID := map[string]model.MatchStatus{}
	for _, m := range matches {
		byID[m.ID] = m.Status
	}
	assert.Equal(t, model.MatchStatusRejected, byID[f.matchA.ID])
	assert.Equal(t, model.MatchStatusPending, byID[f.matchB.ID])
}

func TestReject_LastPendingCreatesFacility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rev.Reject(ctx, "org-1", f.item.ID, f.matchA.ID))
	require.NoError(t, f.rev.Reject(ctx, "org-1", f.item.ID, f.matchB.ID))

	item, matches := f.reload(t)
	assert.Equal(t, model.ItemStatusConfirmedMatch, item.Status)
	require.NotEmpty(t, item.FacilityID)
	assert.NotEqual(t, f.facA.ID, item.FacilityID)
	assert.NotEqual(t, f.facB.ID, item.FacilityID)

	// A third facility now exists, built from the item's own fields.
	facilities := f.st.Facilities()
	require.Len(t, facilities, 3)
	created := facilities[2]
	assert.Equal(t, item.FacilityID, created.ID)
	assert.Equal(t, "Acme Factory", created.Name)
	assert.Equal(t, "123 Main St, Anytown, US", created.Address)
	assert.Equal(t, "US", created.CountryCode)
	assert.Equal(t, 40.0, created.Location.Lat)
	assert.Equal(t, item.ID, created.CreatedFromID)

	// Both original matches rejected, plus a confirmed match on the
	// new facility.
	require.Len(t, matches, 3)
	byID := map[string]model.MatchStatus{}
	for _, m := range matches {
		byID[m.ID] = m.Status
	}
	assert.Equal(t, model.MatchStatusRejected, byID[f.matchA.ID])
	assert.Equal(t, model.MatchStatusRejected, byID[f.matchB.ID])
	for _, m := range matches {
		if m.ID == f.matchA.ID || m.ID == f.matchB.ID {
			continue
		}
		assert.Equal(t, model.MatchStatusConfirmed, m.Status)
		assert.Equal(t, item.FacilityID, m.FacilityID)
		assert.Equal(t, 1.0, m.Confidence)
		assert.Equal(t, "review", m.Results.MatchType)
	}
}

func TestReject_FallbackReusesConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rev.Reject(ctx, "org-1", f.item.ID, f.matchA.ID))

	// An identical facility appears between proposal and decision; the
	// fallback finds it instead of failing.
	rival := &model.Facility{
		ID:          uuid.New().String(),
		Name:        "Acme Factory",
		Address:     "123 Main St, Anytown, US",
		CountryCode: "US",
	}
	f.st.OnCreateFacility = func(*model.Facility) error {
		f.st.OnCreateFacility = nil
		require.NoError(t, f.st.CreateFacility(ctx, rival))
		return store.ErrDuplicateFacility
	}

	require.NoError(t, f.rev.Reject(ctx, "org-1", f.item.ID, f.matchB.ID))

	item, _ := f.reload(t)
	assert.Equal(t, model.ItemStatusConfirmedMatch, item.Status)
	assert.Equal(t, rival.ID, item.FacilityID)
}

func TestReject_SecondDecisionOnSameItemFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rev.Confirm(ctx, "org-1", f.item.ID, f.matchA.ID))

	// The item left POTENTIAL_MATCH, so a late decision is refused.
	err := f.rev.Reject(ctx, "org-1", f.item.ID, f.matchB.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}
