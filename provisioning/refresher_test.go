package provisioning

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubSessionRefresher_Dispatches(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_REPO", "acme/session-bot")

	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	refresher := &GitHubSessionRefresher{APIBaseURL: server.URL, HTTPClient: server.Client()}

	assert.True(t, refresher.TriggerRefresh("cus_123"))
	assert.Equal(t, "/repos/acme/session-bot/dispatches", gotPath)
	assert.Equal(t, "Bearer ghp_test", gotAuth)
	assert.Equal(t, "refresh-session", gotBody["event_type"])

	payload, ok := gotBody["client_payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cus_123", payload["customer_id"])
	assert.NotEmpty(t, payload["triggered_at"])
}

func TestGitHubSessionRefresher_NonNoContentIsFailure(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_REPO", "acme/session-bot")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	refresher := &GitHubSessionRefresher{APIBaseURL: server.URL, HTTPClient: server.Client()}

	assert.False(t, refresher.TriggerRefresh("cus_123"))
}

func TestGitHubSessionRefresher_Unconfigured(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_REPO", "")

	refresher := NewGitHubSessionRefresher()

	assert.False(t, refresher.TriggerRefresh("cus_123"))
}
