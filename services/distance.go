package services

import (
	"math"

	"visit-verify-system/models"
)

// earthRadiusMeters is the mean Earth radius used for great-circle math.
const earthRadiusMeters = 6371000.0

// Distance returns the haversine (great-circle) distance between two
// readings in meters. Symmetric, zero for identical points, and continuous
// across the antimeridian and at the poles.
func Distance(a, b models.GPSCoordinate) float64 {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		return 0
	}

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Clamp before Asin: rounding can push h a hair above 1 for antipodes.
	if h > 1 {
		h = 1
	}
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial compass bearing from one reading to another,
// in degrees [0, 360). 0 is north, 90 is east.
func Bearing(from, to models.GPSCoordinate) float64 {
	lat1 := from.Latitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	dLon := (to.Longitude - from.Longitude) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	if deg == 360 {
		deg = 0
	}
	return deg
}

// Speed returns the implied travel speed between two readings in m/s.
// Returns nil unless both readings carry a device timestamp. Two readings at
// the same place and instant imply 0, not a division by zero.
func Speed(a, b models.GPSCoordinate) *float64 {
	if a.Timestamp == nil || b.Timestamp == nil {
		return nil
	}

	meters := Distance(a, b)
	elapsed := math.Abs(b.Timestamp.Sub(*a.Timestamp).Seconds())
	if elapsed == 0 {
		if meters == 0 {
			zero := 0.0
			return &zero
		}
		inf := math.Inf(1)
		return &inf
	}

	v := meters / elapsed
	return &v
}
