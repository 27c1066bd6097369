// README: Great-circle distance helpers. Kilometres are the only internal unit; miles exist for presentation.
package location

import (
	"errors"
	"fmt"
	"math"

	"potluck/internal/types"
)

const (
	earthRadiusKm = 6371.0
	kmPerMile     = 1.609344

	// MaxTrackableLat is the Web Mercator limit Redis GEO indexes accept.
	MaxTrackableLat = 85.05112878
)

var ErrInvalidCoordinate = errors.New("invalid_coordinate")

// ValidatePoint rejects NaN/Inf and out-of-range coordinates.
func ValidatePoint(p types.Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidCoordinate)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinate, p.Lng)
	}
	return nil
}

// ValidateTrackable is ValidatePoint narrowed to positions the live agent index can store.
func ValidateTrackable(p types.Point) error {
	if err := ValidatePoint(p); err != nil {
		return err
	}
	if math.Abs(p.Lat) > MaxTrackableLat {
		return fmt.Errorf("%w: latitude %f beyond %.8f", ErrInvalidCoordinate, p.Lat, MaxTrackableLat)
	}
	return nil
}

// Distance returns the great-circle distance in kilometres between a and b.
func Distance(a, b types.Point) (float64, error) {
	if err := ValidatePoint(a); err != nil {
		return 0, err
	}
	if err := ValidatePoint(b); err != nil {
		return 0, err
	}
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng), nil
}

func KmToMiles(km float64) float64 {
	return km / kmPerMile
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs a stable insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. Elements at
// equal distance keep their incoming order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
