package models

import (
	"time"
)

// RewardGrant records a points handoff to the external reward ledger.
// The ledger owns idempotency; this mirror only exists so the maintenance
// job can retry a grant that failed to deliver, exactly once.
type RewardGrant struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	SubmissionID string `gorm:"uniqueIndex;not null" json:"submission_id"`
	UserID       string `gorm:"index;not null" json:"user_id"`
	ChallengeID  string `gorm:"not null" json:"challenge_id"`

	PointsAwarded int64 `gorm:"not null" json:"points_awarded"`

	Delivered bool `gorm:"default:false;index" json:"delivered"`
	Attempts  int  `gorm:"default:0" json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
