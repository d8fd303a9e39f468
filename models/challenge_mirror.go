package models

import (
	"time"
)

// ChallengeMirror is a local read-copy of a challenge location owned by the
// catalog service. Rows are upserted by the challenge sync worker and treated
// as immutable reference data by the verification pipeline.
type ChallengeMirror struct {
	ChallengeID  string `gorm:"primaryKey" json:"challenge_id"`
	BusinessName string `gorm:"not null" json:"business_name"`
	Address      string `gorm:"type:text" json:"address"`
	Slug         string `gorm:"index" json:"slug"`

	Latitude           float64 `gorm:"not null" json:"latitude"`
	Longitude          float64 `gorm:"not null" json:"longitude"`
	VerificationRadius float64 `gorm:"not null" json:"verification_radius"` // meters, > 0

	PointsValue int64 `gorm:"default:100" json:"points_value"`
	Active      bool  `gorm:"default:true;index" json:"active"`

	SyncedAt  time.Time `json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetCoordinate returns the catalog's anchor point for the challenge.
func (c *ChallengeMirror) TargetCoordinate() GPSCoordinate {
	return GPSCoordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}
