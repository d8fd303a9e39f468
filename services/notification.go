package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gosimple/unidecode"
)

// NotificationClient posts a completion summary to the social feed service.
// Strictly best-effort: the pipeline logs failures and moves on.
type NotificationClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewNotificationClient(baseURL, token string) *NotificationClient {
	return &NotificationClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type visitPost struct {
	UserID       string `json:"user_id"`
	ChallengeID  string `json:"challenge_id"`
	BusinessName string `json:"business_name"`
	Message      string `json:"message"`
}

// PostVisit announces an approved visit. Business names are transliterated
// to ASCII so the downstream plain-text feed renders them everywhere.
func (c *NotificationClient) PostVisit(ctx context.Context, userID, challengeID, businessName string) error {
	name := unidecode.Unidecode(businessName)
	body, _ := json.Marshal(visitPost{
		UserID:       userID,
		ChallengeID:  challengeID,
		BusinessName: name,
		Message:      fmt.Sprintf("Checked in at %s", name),
	})

	url := fmt.Sprintf("%s/api/v1/feed/posts", c.BaseURL)
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

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("feed service returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
