package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	// Paris -> London is roughly 344 km
	d := HaversineDistance(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343.5, d, 2)

	assert.Equal(t, 0.0, HaversineDistance(10, 10, 10, 10))
	assert.InDelta(t, HaversineDistance(1, 2, 3, 4), HaversineDistance(3, 4, 1, 2), 1e-9)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(90, 180))
	assert.True(t, ValidCoordinates(-90, -180))
	assert.False(t, ValidCoordinates(90.1, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
}

func inBox(p Point, b BoundingBox) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

func TestBoundingBoxContainsCircle(t *testing.T) {
	centerLat, centerLng, radius := 41.3851, 2.1734, 25.0
	box := GetBoundingBox(centerLat, centerLng, radius)

	// points exactly radius away in the four cardinal directions must be inside
	for _, p := range []Point{
		{Lat: centerLat + 0.2245, Lng: centerLng},
		{Lat: centerLat - 0.2245, Lng: centerLng},
		{Lat: centerLat, Lng: centerLng + 0.299},
		{Lat: centerLat, Lng: centerLng - 0.299},
	} {
		if HaversineDistance(centerLat, centerLng, p.Lat, p.Lng) <= radius {
			assert.True(t, inBox(p, box), "point %+v should be in box", p)
		}
	}

	assert.False(t, inBox(Point{Lat: 43, Lng: 2.17}, box))
}

func TestBoundingBoxHighLatitudeKeepsTangentPoints(t *testing.T) {
	box := GetBoundingBox(87, 0, 200)
	p := Point{Lat: 87.25, Lng: 36}
	assert.Less(t, HaversineDistance(87, 0, p.Lat, p.Lng), 200.0)
	assert.True(t, inBox(p, box), "box %+v", box)
	assert.InDelta(t, 36.85, box.NorthEast.Lng, 0.1)
}

func TestBoundingBoxNearPoleSpansAllLongitudes(t *testing.T) {
	box := GetBoundingBox(89.9, 0, 50)
	assert.Equal(t, 90.0, box.NorthEast.Lat)
	assert.Equal(t, -180.0, box.SouthWest.Lng)
	assert.Equal(t, 180.0, box.NorthEast.Lng)
}

func TestBoundingBoxAntimeridian(t *testing.T) {
	box := GetBoundingBox(0, 179.9, 50)
	assert.True(t, box.CrossesAntimeridian())
	assert.False(t, GetBoundingBox(0, 170, 50).CrossesAntimeridian())
}

func TestRoundCoord(t *testing.T) {
	assert.Equal(t, 12.3457, RoundCoord(12.345678))
	assert.Equal(t, -0.0001, RoundCoord(-0.00012))
}
