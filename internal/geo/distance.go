// README: Great-circle distance helpers shared by dispatch and ETA.
package geo

import (
	"math"

	"hyperlocal/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the Haversine distance in kilometres between a and b.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// TravelMinutes converts a distance at the given speed into minutes.
// A non-positive speed yields +Inf so callers can detect a missing profile.
func TravelMinutes(distanceKm, speedKmph float64) float64 {
	if speedKmph <= 0 {
		return math.Inf(1)
	}
	return distanceKm / speedKmph * 60
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortStable performs an insertion sort (fine for small N) ordering items
// by less. Equal elements keep their input order.
func SortStable[T any](items []T, less func(a, b T) bool) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && less(key, items[j]) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
