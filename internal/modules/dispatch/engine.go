// README: Dispatch engine ranks candidate riders for a shop; pure and advisory, the order service performs the claim.
package dispatch

import (
	"math"

	"hyperlocal/internal/geo"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/types"
)

const (
	DefaultRadiusKm  = 3.0
	DefaultSpeedKmph = 20.0
	// distanceEpsilon treats distances this close as a tie.
	distanceEpsilon = 1e-9
)

// Assignment is a suggested rider for an order.
type Assignment struct {
	RiderID                types.ID `json:"rider_id"`
	DistanceToShopKm       float64  `json:"distance_to_shop_km"`
	EstimatedPickupMinutes float64  `json:"estimated_pickup_minutes"`
}

type Engine struct {
	RadiusKm  float64
	SpeedKmph float64
}

// NewEngine returns an engine; non-positive values fall back to the defaults.
func NewEngine(radiusKm, speedKmph float64) Engine {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if speedKmph <= 0 {
		speedKmph = DefaultSpeedKmph
	}
	return Engine{RadiusKm: radiusKm, SpeedKmph: speedKmph}
}

type ranked struct {
	assignment Assignment
	updatedAt  int64
}

// Rank returns every eligible rider, best first: online and idle, within the
// radius of the shop, closest first, ties broken by the most recent location
// update and then by rider id. shopSpeedKmph overrides the engine speed when
// positive.
func (e Engine) Rank(candidates []*rider.Rider, shopLocation types.Point, shopSpeedKmph float64) []Assignment {
	speed := e.SpeedKmph
	if shopSpeedKmph > 0 {
		speed = shopSpeedKmph
	}

	pool := make([]ranked, 0, len(candidates))
	for _, r := range candidates {
		if r == nil || !r.Available() {
			continue
		}
		d := geo.DistanceKm(r.Location, shopLocation)
		if d > e.RadiusKm {
			continue
		}
		pool = append(pool, ranked{
			assignment: Assignment{
				RiderID:                r.ID,
				DistanceToShopKm:       d,
				EstimatedPickupMinutes: geo.TravelMinutes(d, speed),
			},
			updatedAt: r.UpdatedAt.UnixNano(),
		})
	}

	geo.SortStable(pool, func(a, b ranked) bool {
		da, db := a.assignment.DistanceToShopKm, b.assignment.DistanceToShopKm
		if math.Abs(da-db) > distanceEpsilon {
			return da < db
		}
		if a.updatedAt != b.updatedAt {
			return a.updatedAt > b.updatedAt
		}
		return a.assignment.RiderID < b.assignment.RiderID
	})

	out := make([]Assignment, len(pool))
	for i, p := range pool {
		out[i] = p.assignment
	}
	return out
}

// Assign picks the best rider; false means none is available.
func (e Engine) Assign(candidates []*rider.Rider, shopLocation types.Point, shopSpeedKmph float64) (Assignment, bool) {
	ranking := e.Rank(candidates, shopLocation, shopSpeedKmph)
	if len(ranking) == 0 {
		return Assignment{}, false
	}
	return ranking[0], true
}
