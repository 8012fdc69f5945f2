package provisioning

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/om-ray/SNPaymentPortal/utils"
)

// GitHubSessionRefresher triggers the repository-dispatch workflow that logs
// back into TradingView and rotates TV_SESSION_ID. Best effort only: callers
// get a boolean, never an error to handle.
type GitHubSessionRefresher struct {
	APIBaseURL string
	HTTPClient *http.Client
}

func NewGitHubSessionRefresher() *GitHubSessionRefresher {
	return &GitHubSessionRefresher{
		APIBaseURL: "https://api.github.com",
		HTTPClient: &http.Client{},
	}
}

func (g *GitHubSessionRefresher) TriggerRefresh(customerID string) bool {
	githubToken := os.Getenv("GITHUB_TOKEN")
	githubRepo := os.Getenv("GITHUB_REPO") // format: "owner/repo"

	if githubToken == "" || githubRepo == "" {
		utils.LogError(nil, "GitHub token or repo not configured, cannot trigger session refresh")
		return false
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_type": "refresh-session",
		"client_payload": map[string]string{
			"customer_id":  customerID,
			"triggered_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		utils.LogError(err, "Could not encode session refresh payload")
		return false
	}

	req, err := http.NewRequest(http.MethodPost, g.APIBaseURL+"/repos/"+githubRepo+"/dispatches", bytes.NewReader(payload))
	if err != nil {
		utils.LogError(err, "Could not create session refresh request")
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Authorization", "Bearer "+githubToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		utils.LogError(err, "Error triggering session refresh")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		utils.LogError(nil, "Session refresh workflow dispatch returned status "+resp.Status)
		return false
	}

	utils.LogSuccess("Triggered session refresh workflow for customer " + customerID)
	return true
}
