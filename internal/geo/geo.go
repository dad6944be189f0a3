// Package geo ranks reference complexes by great-circle distance and
// renders them as GeoJSON.
package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// EarthRadiusKm is the mean radius used by every distance in the engine.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres between two
// lon/lat points.
func Haversine(a, b orb.Point) float64 {
	lat1 := deg2rad(a.Lat())
	lat2 := deg2rad(b.Lat())
	dLat := lat2 - lat1
	dLon := deg2rad(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

// SearchBound is a lon/lat box that contains every point within radiusKm of
// center. Storage uses it as a cheap index prefilter before Rank.
func SearchBound(center orb.Point, radiusKm float64) orb.Bound {
	// pad slightly since orb/geo uses a larger earth radius
	return orbgeo.NewBoundAroundPoint(center, radiusKm*1000*1.01)
}

// Rank keeps complexes within radiusKm of origin, nearest first, capped at
// limit entries. limit <= 0 means no cap. Ties keep input order.
func Rank(origin orb.Point, complexes []models.NearbyComplex, radiusKm float64, limit int) []models.RankedComplex {
	ranked := make([]models.RankedComplex, 0, len(complexes))
	for _, c := range complexes {
		d := Haversine(origin, c.Point())
		if d > radiusKm {
			continue
		}
		ranked = append(ranked, models.RankedComplex{NearbyComplex: c, DistanceKm: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// FeatureCollection renders the query point and ranked complexes for map
// clients.
func FeatureCollection(origin orb.Point, ranked []models.RankedComplex) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	query := geojson.NewFeature(origin)
	query.Properties = geojson.Properties{
		"kind": "query",
	}
	fc.Append(query)

	for _, c := range ranked {
		f := geojson.NewFeature(c.Point())
		f.ID = c.ID
		f.Properties = geojson.Properties{
			"kind":          "complex",
			"full_address":  c.FullAddress,
			"building_type": string(c.BuildingType),
			"distance_km":   math.Round(c.DistanceKm*1000) / 1000,
		}
		fc.Append(f)
	}
	return fc
}
