package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"visit-verify-system/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallengeSyncClient mirrors challenge locations from the external catalog
// service into the local challenge_mirrors table. The pipeline only ever
// reads the mirror, so a catalog outage degrades to stale reference data
// instead of failed submissions.
type ChallengeSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewChallengeSyncClient(db *gorm.DB) *ChallengeSyncClient {
	baseURL := os.Getenv("CATALOG_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("CATALOG_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("VERIFY_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("VERIFY_SERVICE_TOKEN environment variable is required for challenge sync")
	}

	return &ChallengeSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// catalogChallenge is the catalog service's wire shape.
type catalogChallenge struct {
	ID                 string  `json:"id"`
	BusinessName       string  `json:"business_name"`
	Address            string  `json:"address"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	VerificationRadius float64 `json:"verification_radius"`
	PointsValue        int64   `json:"points_value"`
	Active             bool    `json:"active"`
}

// GetChangedChallenges fetches catalog entries modified since the cutoff.
func (c *ChallengeSyncClient) GetChangedChallenges(ctx context.Context, since time.Time) ([]catalogChallenge, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/challenges", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("catalog service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Challenges []catalogChallenge `json:"challenges"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return response.Challenges, nil
}

// SyncOnce upserts one batch of changed challenges. Idempotent: re-running
// with the same batch rewrites the same rows.
func (c *ChallengeSyncClient) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	changed, err := c.GetChangedChallenges(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(changed) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	mirrors := make([]models.ChallengeMirror, 0, len(changed))
	for _, ch := range changed {
		if ch.ID == "" || ch.VerificationRadius <= 0 {
			log.Printf("[CHALLENGE_SYNC] Skipping malformed catalog entry %q", ch.ID)
			continue
		}
		mirrors = append(mirrors, models.ChallengeMirror{
			ChallengeID:        ch.ID,
			BusinessName:       ch.BusinessName,
			Address:            ch.Address,
			Slug:               slug.Make(ch.BusinessName),
			Latitude:           ch.Latitude,
			Longitude:          ch.Longitude,
			VerificationRadius: ch.VerificationRadius,
			PointsValue:        ch.PointsValue,
			Active:             ch.Active,
			SyncedAt:           now,
		})
	}
	if len(mirrors) == 0 {
		return 0, nil
	}

	err = c.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "challenge_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"business_name", "address", "slug", "latitude", "longitude",
			"verification_radius", "points_value", "active", "synced_at",
		}),
	}).Create(&mirrors).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert challenge mirrors: %w", err)
	}
	return len(mirrors), nil
}

// PollChallenges runs the sync loop until the context is canceled. Each pass
// asks for everything changed since the previous successful pass (with a
// minute of overlap so a slow clock never drops an update).
func PollChallenges(ctx context.Context, client *ChallengeSyncClient, interval time.Duration) {
	// First pass pulls the full catalog.
	since := time.Time{}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now().UTC()
		n, err := client.SyncOnce(ctx, since)
		if err != nil {
			log.Printf("⚠️ [CHALLENGE_SYNC] Sync pass failed: %v", err)
		} else {
			if n > 0 {
				log.Printf("✅ [CHALLENGE_SYNC] Upserted %d challenges", n)
			}
			since = start.Add(-1 * time.Minute)
		}

		select {
		case <-ctx.Done():
			log.Println("[CHALLENGE_SYNC] Stopping challenge sync worker")
			return
		case <-ticker.C:
		}
	}
}
