package services

import (
	"math"
	"testing"
	"time"

	"visit-verify-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coord(lat, lon float64) models.GPSCoordinate {
	return models.GPSCoordinate{Latitude: lat, Longitude: lon}
}

func coordAt(lat, lon float64, t time.Time) models.GPSCoordinate {
	return models.GPSCoordinate{Latitude: lat, Longitude: lon, Timestamp: &t}
}

func TestDistanceIdentity(t *testing.T) {
	points := []models.GPSCoordinate{
		coord(0, 0),
		coord(42.3314, -83.0458),
		coord(-90, 0),
		coord(90, 45),
		coord(12.5, 180),
		coord(12.5, -180),
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Distance(p, p))
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := coord(42.3314, -83.0458)
	b := coord(51.5074, -0.1278)
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
}

func TestDistanceDetroitGrandRapids(t *testing.T) {
	detroit := coord(42.3314, -83.0458)
	grandRapids := coord(42.9634, -85.6681)
	assert.InDelta(t, 226000, Distance(detroit, grandRapids), 10000)
}

func TestDistanceAntimeridianContinuity(t *testing.T) {
	// Two points hugging the ±180° wrap are a few km apart, not a world apart.
	west := coord(0, 179.99)
	east := coord(0, -179.99)
	d := Distance(west, east)
	assert.Less(t, d, 3000.0)
	assert.Greater(t, d, 100.0)

	// Crossing the wrap smoothly: stepping the same longitude delta on either
	// side of the seam moves nearly the same distance.
	inside := Distance(coord(10, 179.90), coord(10, 179.99))
	across := Distance(coord(10, 179.95), coord(10, -179.96))
	assert.InDelta(t, inside, across, 50)
}

func TestDistanceAtPoles(t *testing.T) {
	// All longitudes collapse at the poles.
	assert.InDelta(t, 0, Distance(coord(90, 0), coord(90, 135)), 1e-6)
	assert.InDelta(t, 0, Distance(coord(-90, 12), coord(-90, -99)), 1e-6)

	// Pole to equator is a quarter of the circumference.
	quarter := math.Pi * earthRadiusMeters / 2
	assert.InDelta(t, quarter, Distance(coord(90, 0), coord(0, 0)), 1)
}

func TestBearingCardinalDirections(t *testing.T) {
	origin := coord(0, 0)
	assert.InDelta(t, 0, Bearing(origin, coord(1, 0)), 1e-6)    // north
	assert.InDelta(t, 90, Bearing(origin, coord(0, 1)), 1e-6)   // east
	assert.InDelta(t, 180, Bearing(origin, coord(-1, 0)), 1e-6) // south
	assert.InDelta(t, 270, Bearing(origin, coord(0, -1)), 1e-6) // west
}

func TestBearingRange(t *testing.T) {
	pairs := [][2]models.GPSCoordinate{
		{coord(42.3, -83.0), coord(42.9, -85.6)},
		{coord(-33.9, 151.2), coord(35.7, 139.7)},
		{coord(60, 179), coord(60, -179)},
	}
	for _, p := range pairs {
		b := Bearing(p[0], p[1])
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)
	}
}

func TestSpeedRequiresTimestamps(t *testing.T) {
	now := time.Now()
	assert.Nil(t, Speed(coord(0, 0), coord(1, 1)))
	assert.Nil(t, Speed(coordAt(0, 0, now), coord(1, 1)))
	assert.Nil(t, Speed(coord(0, 0), coordAt(1, 1, now)))
}

func TestSpeedSamePlaceSameInstant(t *testing.T) {
	now := time.Now()
	v := Speed(coordAt(42.0, -83.0, now), coordAt(42.0, -83.0, now))
	require.NotNil(t, v)
	assert.Equal(t, 0.0, *v)
}

func TestSpeedElapsed(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Detroit → Grand Rapids in one hour ≈ 226 km/h ≈ 62.8 m/s.
	v := Speed(coordAt(42.3314, -83.0458, start), coordAt(42.9634, -85.6681, start.Add(time.Hour)))
	require.NotNil(t, v)
	assert.InDelta(t, 62.8, *v, 3)
}
