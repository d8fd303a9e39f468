package models

import (
	"time"
)

// GPSCoordinate is a client-reported GPS reading. Accuracy is the radius of
// the 68% confidence circle in meters, as reported by the device; zero means
// the device did not report one.
type GPSCoordinate struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Accuracy  float64    `json:"accuracy,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// HasAccuracy reports whether the device supplied an accuracy estimate.
func (c GPSCoordinate) HasAccuracy() bool {
	return c.Accuracy > 0
}

// FraudRisk classifies how trustworthy a location claim is
type FraudRisk string

const (
	FraudRiskLow    FraudRisk = "low"
	FraudRiskMedium FraudRisk = "medium"
	FraudRiskHigh   FraudRisk = "high"
)

// Exceeds reports whether r is a higher tier than other.
func (r FraudRisk) Exceeds(other FraudRisk) bool {
	return riskRank(r) > riskRank(other)
}

func riskRank(r FraudRisk) int {
	switch r {
	case FraudRiskLow:
		return 0
	case FraudRiskMedium:
		return 1
	case FraudRiskHigh:
		return 2
	}
	return 2 // unknown tiers are treated as worst case
}

// VerificationMethod records which positioning source the accuracy band implies
type VerificationMethod string

const (
	VerificationMethodGPS     VerificationMethod = "gps"
	VerificationMethodNetwork VerificationMethod = "network"
	VerificationMethodManual  VerificationMethod = "manual"
)

// RecommendedAction is the fraud detector's disposition for a submission
type RecommendedAction string

const (
	ActionApprove RecommendedAction = "approve"
	ActionReview  RecommendedAction = "review"
	ActionReject  RecommendedAction = "reject"
)
