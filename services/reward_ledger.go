package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"visit-verify-system/models"

	"gorm.io/gorm"
)

// RewardLedgerClient posts approved-visit grants to the external reward
// ledger. The ledger owns idempotency; we record each handoff locally so the
// maintenance job can retry undelivered grants once more.
type RewardLedgerClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
	DB      *gorm.DB
	idGen   IDGenerator
}

func NewRewardLedgerClient(baseURL, token string, db *gorm.DB, idGen IDGenerator) *RewardLedgerClient {
	return &RewardLedgerClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
		DB:    db,
		idGen: idGen,
	}
}

type grantRequest struct {
	UserID        string `json:"user_id"`
	ChallengeID   string `json:"challenge_id"`
	PointsAwarded int64  `json:"points_awarded"`
}

// Grant records the handoff and attempts delivery. A delivery failure is not
// an error for the caller: the grant row stays undelivered and the scheduler
// retries it once.
func (c *RewardLedgerClient) Grant(ctx context.Context, submissionID, userID, challengeID string, points int64) error {
	grant := &models.RewardGrant{
		ID:            c.idGen.NewID(),
		SubmissionID:  submissionID,
		UserID:        userID,
		ChallengeID:   challengeID,
		PointsAwarded: points,
	}
	if err := c.DB.Create(grant).Error; err != nil {
		return fmt.Errorf("failed to record reward grant: %w", err)
	}

	if err := c.deliver(ctx, grant); err != nil {
		log.Printf("⚠️ [REWARD] Delivery failed for submission %s (will retry): %v", submissionID, err)
	}
	return nil
}

// deliver posts one grant and updates the mirror row.
func (c *RewardLedgerClient) deliver(ctx context.Context, grant *models.RewardGrant) error {
	grant.Attempts++
	defer func() {
		if err := c.DB.Save(grant).Error; err != nil {
			log.Printf("⚠️ [REWARD] Failed to update grant %s: %v", grant.ID, err)
		}
	}()

	body, _ := json.Marshal(grantRequest{
		UserID:        grant.UserID,
		ChallengeID:   grant.ChallengeID,
		PointsAwarded: grant.PointsAwarded,
	})

	url := fmt.Sprintf("%s/api/v1/ledger/grants", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("reward ledger returned status %d: %s", resp.StatusCode, string(msg))
	}

	grant.Delivered = true
	return nil
}

// RetryUndelivered makes one more delivery pass over grants that failed.
// Grants past two attempts are left alone; dropped failures are logged,
// never retried indefinitely.
func (c *RewardLedgerClient) RetryUndelivered(ctx context.Context) {
	var grants []models.RewardGrant
	if err := c.DB.Where("delivered = ? AND attempts < ?", false, 2).
		Limit(100).Find(&grants).Error; err != nil {
		log.Printf("[REWARD] Retry pass query failed: %v", err)
		return
	}

	for i := range grants {
		if err := c.deliver(ctx, &grants[i]); err != nil {
			log.Printf("⚠️ [REWARD] Retry failed for grant %s, giving up: %v", grants[i].ID, err)
		} else {
			log.Printf("✅ [REWARD] Delivered grant %s on retry", grants[i].ID)
		}
	}
}
