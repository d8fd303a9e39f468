package models

import (
	"time"

	"gorm.io/gorm"
)

// VisitProfile is the denormalized per-user submission history header.
// The full history lives in the submissions table and is only ever read
// through windowed queries; this row carries the counters and the last
// submission time the rate gate needs without a table scan.
type VisitProfile struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // gateway identity, links to profile service

	TotalSubmissions        int64 `gorm:"default:0" json:"total_submissions"`
	ApprovedSubmissions     int64 `gorm:"default:0" json:"approved_submissions"`
	SuspiciousActivityCount int64 `gorm:"default:0" json:"suspicious_activity_count"`

	LastSubmissionAt *time.Time `json:"last_submission_at,omitempty"`

	// Bumped on every append. Single-replica deployments rely on the
	// in-process user lock; this column lets a multi-replica setup add
	// compare-and-set on top without a schema change.
	Revision int64 `gorm:"default:0" json:"revision"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
