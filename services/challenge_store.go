package services

import (
	"errors"
	"fmt"

	"visit-verify-system/models"

	"gorm.io/gorm"
)

// ErrChallengeNotFound marks a submission against a challenge the mirror
// does not know (or that the catalog has deactivated).
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeStore resolves mirrored challenge reference data.
type ChallengeStore interface {
	ActiveChallenge(challengeID string) (*models.ChallengeMirror, error)
}

// GormChallengeStore reads the local challenge mirror table.
type GormChallengeStore struct {
	DB *gorm.DB
}

func NewChallengeStore(db *gorm.DB) *GormChallengeStore {
	return &GormChallengeStore{DB: db}
}

func (s *GormChallengeStore) ActiveChallenge(challengeID string) (*models.ChallengeMirror, error) {
	var challenge models.ChallengeMirror
	err := s.DB.Where("challenge_id = ? AND active = ?", challengeID, true).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge %s: %w", challengeID, err)
	}
	return &challenge, nil
}
