package services

import (
	"math"
	"testing"

	"visit-verify-system/models"

	"github.com/stretchr/testify/assert"
)

func newTestVerifier() *RadiusVerifier {
	return NewRadiusVerifier(DefaultRadiusConfig)
}

func TestVerifyAccuracyBands(t *testing.T) {
	rv := newTestVerifier()
	target := coord(42.3314, -83.0458)

	tests := []struct {
		name     string
		accuracy float64
		method   models.VerificationMethod
		risk     models.FraudRisk
	}{
		{"tight gps fix", 15, models.VerificationMethodGPS, models.FraudRiskLow},
		{"gps band edge", 50, models.VerificationMethodGPS, models.FraudRiskLow},
		{"network fix", 200, models.VerificationMethodNetwork, models.FraudRiskMedium},
		{"network band edge", 500, models.VerificationMethodNetwork, models.FraudRiskMedium},
		{"coarse fix", 900, models.VerificationMethodManual, models.FraudRiskHigh},
		{"no accuracy", 0, models.VerificationMethodManual, models.FraudRiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := models.GPSCoordinate{Latitude: 42.3315, Longitude: -83.0458, Accuracy: tt.accuracy}
			verdict := rv.Verify(user, target, 100)

			assert.Equal(t, tt.method, verdict.VerificationMethod)
			assert.Equal(t, tt.risk, verdict.FraudRisk)
			// ~11m away: geometrically in range, but untrustworthy
			// accuracy still fails the check.
			assert.Equal(t, tt.risk != models.FraudRiskHigh, verdict.IsValid)
		})
	}
}

func TestVerifyOutOfRange(t *testing.T) {
	rv := newTestVerifier()
	detroit := models.GPSCoordinate{Latitude: 42.3314, Longitude: -83.0458, Accuracy: 10}
	grandRapids := coord(42.9634, -85.6681)

	verdict := rv.Verify(detroit, grandRapids, 500)
	assert.False(t, verdict.IsValid)
	assert.InDelta(t, 226000, verdict.Distance, 10000)
	assert.Equal(t, models.FraudRiskLow, verdict.FraudRisk)
}

func TestVerifyDegenerateInput(t *testing.T) {
	rv := newTestVerifier()
	target := coord(42.3314, -83.0458)

	for _, user := range []models.GPSCoordinate{
		{Latitude: math.NaN(), Longitude: 0},
		{Latitude: 0, Longitude: math.Inf(1)},
		{Latitude: 120, Longitude: 0},
		{Latitude: 0, Longitude: -200},
	} {
		verdict := rv.Verify(user, target, 100)
		assert.False(t, verdict.IsValid)
		assert.Equal(t, -1.0, verdict.Distance)
		assert.Equal(t, models.FraudRiskHigh, verdict.FraudRisk)
		assert.Equal(t, models.VerificationMethodManual, verdict.VerificationMethod)
	}

	// Negative radius is equally degenerate.
	verdict := rv.Verify(models.GPSCoordinate{Latitude: 1, Longitude: 1, Accuracy: 10}, target, -5)
	assert.False(t, verdict.IsValid)
	assert.Equal(t, -1.0, verdict.Distance)
}

func TestVerifyZeroRadius(t *testing.T) {
	rv := newTestVerifier()
	target := coord(42.3314, -83.0458)

	same := models.GPSCoordinate{Latitude: 42.3314, Longitude: -83.0458, Accuracy: 10}
	verdict := rv.Verify(same, target, 0)
	assert.True(t, verdict.IsValid)
	assert.Equal(t, 0.0, verdict.Distance)

	nearby := models.GPSCoordinate{Latitude: 42.33141, Longitude: -83.0458, Accuracy: 10}
	verdict = rv.Verify(nearby, target, 0)
	assert.False(t, verdict.IsValid)
}
