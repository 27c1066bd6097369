// README: Store-side prefilter for service areas: zips plus a lat/lng box around each radius.
package matching

import (
	"math"

	"potluck/internal/modules/location"
	"potluck/internal/types"
)

// kmPerDegreeLat matches the mean earth radius used by location.Distance.
const kmPerDegreeLat = 6371.0 * math.Pi / 180

// boxSlack widens each box so rounding never drops a job the exact check would keep.
const boxSlack = 1.01

// Coverage admits a superset of the jobs any of the areas cover. The exact
// radius check runs afterwards in rankJobs.
type Coverage struct {
	Zips   []string
	MinLat []float64
	MaxLat []float64
	MinLng []float64
	MaxLng []float64
}

func coverageOf(areas []location.ServiceArea) Coverage {
	var cov Coverage
	for _, a := range areas {
		if !a.IsActive {
			continue
		}
		if zip := location.NormalizeZip(a.ZipCode); zip != "" {
			cov.Zips = append(cov.Zips, zip)
		}
		if a.Centre == nil || location.ValidatePoint(*a.Centre) != nil {
			continue
		}
		minLat, maxLat, minLng, maxLng := boundingBox(*a.Centre, a.RadiusKm)
		cov.MinLat = append(cov.MinLat, minLat)
		cov.MaxLat = append(cov.MaxLat, maxLat)
		cov.MinLng = append(cov.MinLng, minLng)
		cov.MaxLng = append(cov.MaxLng, maxLng)
	}
	return cov
}

// boundingBox falls back to the full longitude range near the poles and across the antimeridian.
func boundingBox(c types.Point, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := math.Max(radiusKm, 0) * boxSlack / kmPerDegreeLat
	minLat = math.Max(c.Lat-dLat, -90)
	maxLat = math.Min(c.Lat+dLat, 90)

	cos := math.Cos(math.Max(math.Abs(minLat), math.Abs(maxLat)) * math.Pi / 180)
	if cos < 1e-6 {
		return minLat, maxLat, -180, 180
	}
	dLng := dLat / cos
	minLng, maxLng = c.Lng-dLng, c.Lng+dLng
	if minLng < -180 || maxLng > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLng, maxLng
}

func (cov Coverage) Empty() bool {
	return len(cov.Zips) == 0 && len(cov.MinLat) == 0
}

// Admits mirrors the SQL predicate in Store.OpenCandidates.
func (cov Coverage) Admits(zip string, dest *types.Point) bool {
	if zip = location.NormalizeZip(zip); zip != "" {
		for _, z := range cov.Zips {
			if z == zip {
				return true
			}
		}
	}
	if dest == nil {
		return false
	}
	for i := range cov.MinLat {
		if dest.Lat >= cov.MinLat[i] && dest.Lat <= cov.MaxLat[i] &&
			dest.Lng >= cov.MinLng[i] && dest.Lng <= cov.MaxLng[i] {
			return true
		}
	}
	return false
}
