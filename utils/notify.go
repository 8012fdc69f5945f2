package utils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
)

// SendOpsNotification posts a message to the configured chat webhook
// (NOTIFICATION_WEBHOOK_URL). The payload carries both the Discord and the
// Slack field so either kind of webhook renders it. Failures are logged and
// swallowed; an unreachable chat channel must never fail the caller.
func SendOpsNotification(message string) {
	webhookURL := os.Getenv("NOTIFICATION_WEBHOOK_URL")
	if webhookURL == "" {
		LogInfo("NOTIFICATION_WEBHOOK_URL not configured, skipping notification")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"content": message, // Discord format
		"text":    message, // Slack format
	})
	if err != nil {
		LogError(err, "Could not encode ops notification payload")
		return
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		LogError(err, "Could not send ops notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		LogError(nil, "Ops notification webhook returned status "+resp.Status)
	}
}
