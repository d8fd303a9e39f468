package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetChangedChallenges(t *testing.T) {
	var gotSince string
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotToken = r.Header.Get("X-Service-Token")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"challenges": []map[string]any{
				{
					"id":                  "ch-1",
					"business_name":       "Anchor Coffee",
					"address":             "100 Main St",
					"latitude":            42.3314,
					"longitude":           -83.0458,
					"verification_radius": 100.0,
					"points_value":        100,
					"active":              true,
				},
			},
		})
	}))
	defer server.Close()

	client := &ChallengeSyncClient{
		BaseURL:    server.URL,
		Token:      "svc-token",
		HTTPClient: server.Client(),
	}

	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	challenges, err := client.GetChangedChallenges(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01T12:00:00Z", gotSince)
	assert.Equal(t, "svc-token", gotToken)
	require.Len(t, challenges, 1)
	assert.Equal(t, "ch-1", challenges[0].ID)
	assert.Equal(t, "Anchor Coffee", challenges[0].BusinessName)
	assert.Equal(t, 100.0, challenges[0].VerificationRadius)
	assert.True(t, challenges[0].Active)
}

func TestGetChangedChallengesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog offline", http.StatusBadGateway)
	}))
	defer server.Close()

	client := &ChallengeSyncClient{
		BaseURL:    server.URL,
		Token:      "svc-token",
		HTTPClient: server.Client(),
	}

	_, err := client.GetChangedChallenges(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
