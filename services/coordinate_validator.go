package services

import (
	"math"

	"visit-verify-system/models"
)

// maxReasonableAccuracy is the accuracy ceiling above which a reading is
// useless for radius verification (>10km confidence circle).
const maxReasonableAccuracy = 10000.0

// CoordinateValidation is the result of validating one raw reading.
// Normalized is set only when IsValid.
type CoordinateValidation struct {
	IsValid    bool                  `json:"is_valid"`
	Normalized *models.GPSCoordinate `json:"normalized,omitempty"`
	Errors     []string              `json:"errors,omitempty"`
}

// CoordinateValidator checks and normalizes client-reported GPS readings.
type CoordinateValidator struct {
	clock Clock
}

func NewCoordinateValidator(clock Clock) *CoordinateValidator {
	return &CoordinateValidator{clock: clock}
}

// Validate runs every rule and collects every violation, so a reading with a
// bad latitude and a bad accuracy reports both. On success it returns the
// normalized reading: lat/lon truncated to 8 decimal places, accuracy
// rounded to the nearest meter (0 meaning none recorded), and the timestamp
// filled from the clock when the device did not supply one.
func (v *CoordinateValidator) Validate(coord models.GPSCoordinate) CoordinateValidation {
	var errs []string

	finite := func(f float64) bool {
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}

	if !finite(coord.Latitude) || !finite(coord.Longitude) {
		errs = append(errs, "Coordinates must be valid numbers")
	}
	if finite(coord.Latitude) && (coord.Latitude < -90 || coord.Latitude > 90) {
		errs = append(errs, "Latitude must be between -90 and 90 degrees")
	}
	if finite(coord.Longitude) && (coord.Longitude < -180 || coord.Longitude > 180) {
		errs = append(errs, "Longitude must be between -180 and 180 degrees")
	}

	if coord.Accuracy != 0 {
		if !finite(coord.Accuracy) {
			errs = append(errs, "GPS accuracy must be a positive number")
		} else if coord.Accuracy < 0 {
			errs = append(errs, "GPS accuracy must be a positive number")
		} else if coord.Accuracy > maxReasonableAccuracy {
			errs = append(errs, "GPS accuracy seems unreasonably high (>10km)")
		}
	}

	if len(errs) > 0 {
		return CoordinateValidation{IsValid: false, Errors: errs}
	}

	normalized := models.GPSCoordinate{
		Latitude:  truncateDegrees(coord.Latitude),
		Longitude: truncateDegrees(coord.Longitude),
		Accuracy:  math.Round(coord.Accuracy),
		Timestamp: coord.Timestamp,
	}
	if normalized.Timestamp == nil {
		now := v.clock.Now()
		normalized.Timestamp = &now
	}

	return CoordinateValidation{IsValid: true, Normalized: &normalized}
}

// truncateDegrees cuts a coordinate to 8 decimal places (~1.1mm), the stored
// precision for all equality comparisons downstream. Values already at that
// precision must come back unchanged, so scaling error is snapped away
// before truncating.
func truncateDegrees(deg float64) float64 {
	scaled := deg * 1e8
	if r := math.Round(scaled); math.Abs(scaled-r) < 1e-6 {
		scaled = r
	}
	return math.Trunc(scaled) / 1e8
}
