package services

import (
	"fmt"
	"sync"
	"time"

	"visit-verify-system/models"

	"gorm.io/gorm"
)

// HistoryService owns the read-evaluate-append cycle on a user's submission
// history. All reads are windowed at the query level; the submissions table
// is never scanned per user.
//
// The read-then-append sequence is racy under concurrent submissions from
// the same user, so callers wrap steps that read the snapshot and commit in
// WithUserLock. Different users never contend.
type HistoryService struct {
	DB    *gorm.DB
	clock Clock
	idGen IDGenerator

	patternWindow int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewHistoryService(db *gorm.DB, clock Clock, idGen IDGenerator, patternWindow int) *HistoryService {
	return &HistoryService{
		DB:            db,
		clock:         clock,
		idGen:         idGen,
		patternWindow: patternWindow,
		locks:         make(map[string]*sync.Mutex),
	}
}

// WithUserLock serializes fn against other submissions from the same user.
func (h *HistoryService) WithUserLock(userID string, fn func() error) error {
	h.mu.Lock()
	lock, ok := h.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[userID] = lock
	}
	h.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// EnsureProfile creates the per-user profile row if missing (idempotent).
func (h *HistoryService) EnsureProfile(userID string) (*models.VisitProfile, error) {
	var profile models.VisitProfile
	err := h.DB.Where("user_id = ?", userID).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		profile = models.VisitProfile{
			ID:     h.idGen.NewID(),
			UserID: userID,
		}
		if err := h.DB.Create(&profile).Error; err != nil {
			return nil, err
		}
		return &profile, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Snapshot builds the windowed history view the fraud detector needs:
// the most recent submissions (newest first, capped at the pattern window),
// the trailing-24h count, whether the challenge was already attempted, and
// the last submission time from the profile header.
func (h *HistoryService) Snapshot(userID, challengeID string) (HistorySnapshot, error) {
	var snap HistorySnapshot

	var recent []models.Submission
	if err := h.DB.Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Limit(h.patternWindow).
		Find(&recent).Error; err != nil {
		return snap, fmt.Errorf("failed to load recent submissions: %w", err)
	}
	snap.Recent = recent

	since := h.clock.Now().Add(-24 * time.Hour)
	if err := h.DB.Model(&models.Submission{}).
		Where("user_id = ? AND submitted_at >= ?", userID, since).
		Count(&snap.CountLast24h).Error; err != nil {
		return snap, fmt.Errorf("failed to count daily submissions: %w", err)
	}

	var dup int64
	if err := h.DB.Model(&models.Submission{}).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Count(&dup).Error; err != nil {
		return snap, fmt.Errorf("failed to check duplicate challenge: %w", err)
	}
	snap.HasChallenge = dup > 0

	var profile models.VisitProfile
	err := h.DB.Where("user_id = ?", userID).First(&profile).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return snap, fmt.Errorf("failed to load visit profile: %w", err)
	}
	if err == nil {
		snap.LastSubmissionAt = profile.LastSubmissionAt
	}

	return snap, nil
}

// Append persists the evaluated submission and bumps the profile header in
// one transaction. Every completed evaluation is appended exactly once;
// suspicious marks submissions the detector scored high risk.
func (h *HistoryService) Append(sub *models.Submission, suspicious bool) error {
	return h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to persist submission: %w", err)
		}

		var profile models.VisitProfile
		if err := tx.Where("user_id = ?", sub.UserID).First(&profile).Error; err != nil {
			return fmt.Errorf("visit profile not found for %s: %w", sub.UserID, err)
		}

		profile.TotalSubmissions++
		if sub.VerificationStatus == models.StatusApproved {
			profile.ApprovedSubmissions++
		}
		if suspicious {
			profile.SuspiciousActivityCount++
		}
		at := sub.SubmittedAt
		profile.LastSubmissionAt = &at
		profile.Revision++

		if err := tx.Save(&profile).Error; err != nil {
			return fmt.Errorf("failed to update visit profile: %w", err)
		}
		return nil
	})
}

// RecountSuspicious recomputes the suspicious counter for profiles touched
// since the cutoff. Ran hourly by the maintenance scheduler; keeps the
// denormalized counter honest if a moderator rewrites verdicts.
func (h *HistoryService) RecountSuspicious(since time.Time) (int64, error) {
	var profiles []models.VisitProfile
	if err := h.DB.Where("last_submission_at >= ?", since).Find(&profiles).Error; err != nil {
		return 0, err
	}

	var updated int64
	for _, profile := range profiles {
		var high int64
		if err := h.DB.Model(&models.Submission{}).
			Where("user_id = ? AND fraud_risk = ?", profile.UserID, models.FraudRiskHigh).
			Count(&high).Error; err != nil {
			return updated, err
		}
		if high != profile.SuspiciousActivityCount {
			if err := h.DB.Model(&models.VisitProfile{}).
				Where("id = ?", profile.ID).
				Update("suspicious_activity_count", high).Error; err != nil {
				return updated, err
			}
			updated++
		}
	}
	return updated, nil
}
