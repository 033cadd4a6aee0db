// README: Dispatch engine tests: eligibility filters, radius, distance ordering and recency tie-break.
package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/types"
)

var shopPoint = types.Point{Lat: 12.9716, Lng: 77.5946}

func north(km float64) types.Point {
	return types.Point{Lat: shopPoint.Lat + km/111.19492664, Lng: shopPoint.Lng}
}

func onlineRider(id types.ID, at types.Point, updated time.Time) *rider.Rider {
	return &rider.Rider{ID: id, UserID: "u-" + id, Location: at, IsOnline: true, UpdatedAt: updated}
}

func TestAssignPrefersRecentRiderOnTie(t *testing.T) {
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	candidates := []*rider.Rider{
		onlineRider("older", north(1), base),
		onlineRider("newer", north(1), base.Add(time.Minute)),
		onlineRider("far", north(5), base.Add(time.Hour)),
	}

	got, ok := NewEngine(0, 0).Assign(candidates, shopPoint, 0)
	require.True(t, ok)
	assert.Equal(t, types.ID("newer"), got.RiderID)
	assert.InDelta(t, 1.0, got.DistanceToShopKm, 0.001)
	assert.InDelta(t, 3.0, got.EstimatedPickupMinutes, 0.01)

	ranking := NewEngine(0, 0).Rank(candidates, shopPoint, 0)
	require.Len(t, ranking, 2, "5 km rider is outside the radius")
	assert.Equal(t, types.ID("older"), ranking[1].RiderID)
}

func TestAssignIsDeterministic(t *testing.T) {
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	candidates := []*rider.Rider{
		onlineRider("b", north(0.5), base),
		onlineRider("a", north(0.5), base),
		onlineRider("c", north(0.2), base),
	}
	e := NewEngine(3, 20)
	for i := 0; i < 10; i++ {
		ranking := e.Rank(candidates, shopPoint, 0)
		require.Len(t, ranking, 3)
		assert.Equal(t, []types.ID{"c", "a", "b"}, []types.ID{ranking[0].RiderID, ranking[1].RiderID, ranking[2].RiderID})
	}
}

func TestAssignFiltersUnavailable(t *testing.T) {
	now := time.Now()
	busyOrder := types.ID("o-busy")
	candidates := []*rider.Rider{
		{ID: "offline", Location: north(0.1), IsOnline: false, UpdatedAt: now},
		{ID: "busy", Location: north(0.1), IsOnline: true, IsBusy: true, AssignedOrderID: &busyOrder, UpdatedAt: now},
		nil,
	}
	_, ok := NewEngine(0, 0).Assign(candidates, shopPoint, 0)
	assert.False(t, ok)

	_, ok = NewEngine(0, 0).Assign(nil, shopPoint, 0)
	assert.False(t, ok, "empty pool yields none, not an error")
}

func TestAssignRadiusIsInclusive(t *testing.T) {
	r := onlineRider("edge", north(2.999), time.Now())
	_, ok := NewEngine(3, 0).Assign([]*rider.Rider{r}, shopPoint, 0)
	assert.True(t, ok)

	r = onlineRider("outside", north(3.01), time.Now())
	_, ok = NewEngine(3, 0).Assign([]*rider.Rider{r}, shopPoint, 0)
	assert.False(t, ok)
}

func TestPickupMinutesUsesShopSpeed(t *testing.T) {
	r := onlineRider("r", north(2), time.Now())

	got, ok := NewEngine(0, 0).Assign([]*rider.Rider{r}, shopPoint, 0)
	require.True(t, ok)
	assert.InDelta(t, 6.0, got.EstimatedPickupMinutes, 0.01)

	got, ok = NewEngine(0, 0).Assign([]*rider.Rider{r}, shopPoint, 30)
	require.True(t, ok)
	assert.InDelta(t, 4.0, got.EstimatedPickupMinutes, 0.01)
}
