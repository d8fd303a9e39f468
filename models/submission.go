package models

import (
	"time"

	"gorm.io/gorm"
)

// ProofType indicates what kind of evidence the user attached
type ProofType string

const (
	ProofTypePhoto            ProofType = "photo"
	ProofTypeReceipt          ProofType = "receipt"
	ProofTypeGPSCheckin       ProofType = "gps_checkin"
	ProofTypeLocationQuestion ProofType = "location_question"
)

// ValidProofType reports whether t is one of the accepted proof types.
func ValidProofType(t ProofType) bool {
	switch t {
	case ProofTypePhoto, ProofTypeReceipt, ProofTypeGPSCheckin, ProofTypeLocationQuestion:
		return true
	}
	return false
}

// VerificationStatus is the submission state machine:
// pending → approved | rejected | manual_review.
// approved and rejected are terminal; manual_review is resolved later by a moderator.
type VerificationStatus string

const (
	StatusPending      VerificationStatus = "pending"
	StatusApproved     VerificationStatus = "approved"
	StatusRejected     VerificationStatus = "rejected"
	StatusManualReview VerificationStatus = "manual_review"
)

// Terminal reports whether the status can never change again.
func (s VerificationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ProofData carries the type-specific evidence fields. Only the fields for
// the submission's proof type are meaningful; the rest stay empty.
type ProofData struct {
	ImageURL     string `json:"image_url,omitempty"`     // photo
	BusinessName string `json:"business_name,omitempty"` // receipt
	Timestamp    string `json:"timestamp,omitempty"`     // receipt
	Amount       string `json:"amount,omitempty"`        // receipt
	Answer       string `json:"answer,omitempty"`        // location_question
}

// Submission is one proof-of-visit attempt. Status is mutated exactly once,
// by the pipeline (or by moderator resolution out of manual_review).
type Submission struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID string    `gorm:"index:idx_submissions_user_challenge;not null" json:"challenge_id"`
	UserID      string    `gorm:"index:idx_submissions_user_challenge;index;not null" json:"user_id"`
	ProofType   ProofType `gorm:"not null" json:"proof_type"`

	ProofData ProofData `gorm:"serializer:json;type:jsonb" json:"proof_data"`

	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Accuracy  float64    `json:"accuracy,omitempty"`
	ReadingAt *time.Time `json:"reading_at,omitempty"` // device timestamp of the GPS reading

	SubmittedAt        time.Time          `gorm:"index;not null" json:"submitted_at"`
	VerificationStatus VerificationStatus `gorm:"not null;default:'pending';index" json:"verification_status"`

	// Verdict detail, filled by the pipeline
	FraudRisk          FraudRisk          `json:"fraud_risk,omitempty"`
	FraudReasons       []string           `gorm:"serializer:json;type:jsonb" json:"fraud_reasons,omitempty"`
	DistanceMeters     float64            `json:"distance_meters"`
	VerificationMethod VerificationMethod `json:"verification_method,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Coordinate rebuilds the reading the submission was evaluated with.
func (s *Submission) Coordinate() GPSCoordinate {
	return GPSCoordinate{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Accuracy:  s.Accuracy,
		Timestamp: s.ReadingAt,
	}
}
