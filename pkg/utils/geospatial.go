package utils

import (
	"math"
)

const earthRadiusKm = 6371

// HaversineDistance calculates the distance between two points on Earth
// using the Haversine formula. Returns distance in kilometers.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lng1Rad := lng1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lng2Rad := lng2 * math.Pi / 180

	dlat := lat2Rad - lat1Rad
	dlng := lng2Rad - lng1Rad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlng/2)*math.Sin(dlng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// ValidCoordinates reports whether lat/lng are inside the WGS84 ranges.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Point represents a geographical point
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox represents a rectangular area
type BoundingBox struct {
	NorthEast Point `json:"northEast"`
	SouthWest Point `json:"southWest"`
}

// GetBoundingBox creates a bounding box that contains every point within
// radiusKm of the center. It is a superset of the circle, so callers still
// filter with HaversineDistance. Near the poles the longitude span is
// widened to the full range.
func GetBoundingBox(centerLat, centerLng, radiusKm float64) BoundingBox {
	angular := radiusKm / earthRadiusKm * 180 / math.Pi

	latMin := math.Max(centerLat-angular, -90)
	latMax := math.Min(centerLat+angular, 90)

	lngMin, lngMax := -180.0, 180.0
	// the meridians tangent to the circle bound its longitude span
	if cosLat := math.Cos(centerLat * math.Pi / 180); cosLat > 1e-6 && latMax < 90 && latMin > -90 {
		if ratio := math.Sin(radiusKm/earthRadiusKm) / cosLat; ratio < 1 {
			lngDelta := math.Asin(ratio) * 180 / math.Pi
			lngMin = centerLng - lngDelta
			lngMax = centerLng + lngDelta
		}
	}

	return BoundingBox{
		NorthEast: Point{Lat: latMax, Lng: lngMax},
		SouthWest: Point{Lat: latMin, Lng: lngMin},
	}
}

// CrossesAntimeridian reports whether the box wraps past ±180 longitude.
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.SouthWest.Lng < -180 || b.NorthEast.Lng > 180
}

// RoundCoord rounds a coordinate to 4 decimals (~11m), used for cache keys.
func RoundCoord(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
