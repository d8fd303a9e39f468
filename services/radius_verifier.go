package services

import (
	"math"

	"visit-verify-system/models"
)

// RadiusConfig holds the accuracy bands that map a reading's reported
// accuracy to a positioning method and a base risk tier. Env-overridable via
// LoadRadiusConfig.
type RadiusConfig struct {
	GPSAccuracyMax     float64 // meters; at or below → gps / low risk
	NetworkAccuracyMax float64 // meters; at or below → network / medium risk
}

var DefaultRadiusConfig = RadiusConfig{
	GPSAccuracyMax:     50,
	NetworkAccuracyMax: 500,
}

// RadiusVerdict is the in/out-of-range decision for one reading against one
// challenge target.
type RadiusVerdict struct {
	IsValid            bool                      `json:"is_valid"`
	Distance           float64                   `json:"distance"`
	Accuracy           float64                   `json:"accuracy,omitempty"`
	FraudRisk          models.FraudRisk          `json:"fraud_risk"`
	VerificationMethod models.VerificationMethod `json:"verification_method"`
}

// RadiusVerifier combines geodesic distance with reading accuracy. A reading
// can sit geometrically inside the radius and still fail when its accuracy
// is too poor to trust.
type RadiusVerifier struct {
	cfg RadiusConfig
}

func NewRadiusVerifier(cfg RadiusConfig) *RadiusVerifier {
	return &RadiusVerifier{cfg: cfg}
}

// Verify never panics: degenerate input yields {false, -1, high, manual}.
// A zero radius is legal and requires the distance to be zero within
// floating tolerance.
func (rv *RadiusVerifier) Verify(userLoc, targetLoc models.GPSCoordinate, radiusMeters float64) RadiusVerdict {
	if !plausibleCoordinate(userLoc) || !plausibleCoordinate(targetLoc) || radiusMeters < 0 {
		return RadiusVerdict{
			IsValid:            false,
			Distance:           -1,
			Accuracy:           userLoc.Accuracy,
			FraudRisk:          models.FraudRiskHigh,
			VerificationMethod: models.VerificationMethodManual,
		}
	}

	dist := Distance(userLoc, targetLoc)

	method := models.VerificationMethodManual
	risk := models.FraudRiskHigh
	switch {
	case userLoc.HasAccuracy() && userLoc.Accuracy <= rv.cfg.GPSAccuracyMax:
		method = models.VerificationMethodGPS
		risk = models.FraudRiskLow
	case userLoc.HasAccuracy() && userLoc.Accuracy <= rv.cfg.NetworkAccuracyMax:
		method = models.VerificationMethodNetwork
		risk = models.FraudRiskMedium
	}

	inRange := dist <= radiusMeters
	if radiusMeters == 0 {
		inRange = dist < 1e-6
	}

	return RadiusVerdict{
		IsValid:            inRange && risk != models.FraudRiskHigh,
		Distance:           dist,
		Accuracy:           userLoc.Accuracy,
		FraudRisk:          risk,
		VerificationMethod: method,
	}
}

func plausibleCoordinate(c models.GPSCoordinate) bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}
