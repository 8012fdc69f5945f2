package tradingview

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/om-ray/SNPaymentPortal/utils"
)

// Per-indicator grant result statuses.
const (
	StatusSuccess       = "success"
	StatusFailure       = "failure"
	StatusNotApplicable = "not-applicable"
)

const defaultBaseURL = "https://www.tradingview.com"

// ValidationResult is the outcome of a username lookup.
type ValidationResult struct {
	Valid    bool   `json:"validuser"`
	Username string `json:"verifiedUserName"`
}

// GrantResult reports the outcome of a grant/revoke call for one pine script.
type GrantResult struct {
	PineID            string `json:"pine_id"`
	Username          string `json:"username"`
	HasAccess         bool   `json:"hasAccess"`
	NoExpiration      bool   `json:"noExpiration"`
	CurrentExpiration string `json:"currentExpiration,omitempty"`
	Expiration        string `json:"expiration,omitempty"`
	Status            string `json:"status,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Client wraps the TradingView endpoints used for access management. Every
// privileged call authenticates with the shared sessionid cookie; there is no
// retry or refresh here, auth failures are reported verbatim so the caller can
// classify them.
type Client struct {
	BaseURL    string
	SessionID  string
	PineIDs    []string
	HTTPClient *http.Client

	// now is the clock used for new-grant expirations, overridable in tests
	now func() time.Time
}

// NewClientFromEnv builds a client from TV_BASE_URL, TV_SESSION_ID and the
// comma-separated PINE_IDS list.
func NewClientFromEnv() *Client {
	baseURL := os.Getenv("TV_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var pineIDs []string
	for _, id := range strings.Split(os.Getenv("PINE_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			pineIDs = append(pineIDs, id)
		}
	}

	return NewClient(baseURL, os.Getenv("TV_SESSION_ID"), pineIDs)
}

func NewClient(baseURL, sessionID string, pineIDs []string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SessionID:  sessionID,
		PineIDs:    pineIDs,
		HTTPClient: &http.Client{},
		now:        time.Now,
	}
}

// ValidateUsername looks the username up against the TradingView suggestion
// endpoint and matches it case-insensitively against the candidates. A missing
// username is not an error: the result simply reports Valid=false.
func (c *Client) ValidateUsername(username string) (ValidationResult, error) {
	resp, err := c.get("/username_hint/?s=" + url.QueryEscape(username))
	if err != nil {
		return ValidationResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ValidationResult{}, responseError(resp)
	}

	var candidates []struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return ValidationResult{}, fmt.Errorf("error decoding username hint response: %v", err)
	}

	for _, candidate := range candidates {
		if strings.EqualFold(candidate.Username, username) {
			return ValidationResult{Valid: true, Username: candidate.Username}, nil
		}
	}

	return ValidationResult{Valid: false}, nil
}

// GrantAccess grants or extends access to every configured pine script for one
// username. Each pine id is attempted independently; one failing script does
// not stop the rest. Lifetime grants are skipped and reported not-applicable.
// The new expiration is the parsed duration added to the current expiration
// when the user already has access, or to now when they do not.
func (c *Client) GrantAccess(username, duration string) ([]GrantResult, error) {
	if len(c.PineIDs) == 0 {
		return nil, fmt.Errorf("no pine ids configured")
	}

	d, err := ParseDuration(duration)
	if err != nil {
		return nil, err
	}

	results := make([]GrantResult, 0, len(c.PineIDs))
	for _, pineID := range c.PineIDs {
		results = append(results, c.grantOne(pineID, username, d))
	}
	return results, nil
}

func (c *Client) grantOne(pineID, username string, d Duration) GrantResult {
	result, err := c.currentAccess(pineID, username)
	if err != nil {
		utils.LogError(err, "Could not read current access for pine "+pineID)
		return GrantResult{
			PineID:   pineID,
			Username: username,
			Status:   StatusFailure,
			Error:    err.Error(),
		}
	}

	if result.NoExpiration {
		// Lifetime access, nothing to extend
		result.Status = StatusNotApplicable
		return result
	}

	// Extend from the current expiration when access exists, from now otherwise.
	// Never computes a date earlier than what the user already has.
	base := c.now()
	if result.HasAccess && result.CurrentExpiration != "" {
		if current, err := parseExpiration(result.CurrentExpiration); err == nil {
			base = current
		}
	}
	expiration := d.AddTo(base)
	result.Expiration = expiration.UTC().Format(expirationLayout)

	endpoint := "/pine_perm/add/"
	if result.HasAccess {
		endpoint = "/pine_perm/modify_user_expiration/"
	}

	form := url.Values{}
	form.Set("pine_id", pineID)
	form.Set("username_recip", username)
	form.Set("expiration", result.Expiration)

	resp, err := c.postForm(endpoint, form)
	if err != nil {
		result.Status = StatusFailure
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Status = StatusSuccess
	} else {
		result.Status = StatusFailure
		result.Error = responseError(resp).Error()
	}
	return result
}

// RevokeAccess removes the grant on every configured pine script. Not called
// from the billing event path (access lapses naturally on cancellation), kept
// for operator use.
func (c *Client) RevokeAccess(username string) ([]GrantResult, error) {
	if len(c.PineIDs) == 0 {
		return nil, fmt.Errorf("no pine ids configured")
	}

	results := make([]GrantResult, 0, len(c.PineIDs))
	for _, pineID := range c.PineIDs {
		result := GrantResult{PineID: pineID, Username: username}

		form := url.Values{}
		form.Set("pine_id", pineID)
		form.Set("username_recip", username)

		resp, err := c.postForm("/pine_perm/remove/", form)
		if err != nil {
			result.Status = StatusFailure
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			result.Status = StatusSuccess
		} else {
			result.Status = StatusFailure
			result.Error = responseError(resp).Error()
		}
		resp.Body.Close()
		results = append(results, result)
	}
	return results, nil
}

// CheckSession exercises the stored session cookie against a lightweight
// authenticated page. Returns the HTTP status so the health probe can report it.
func (c *Client) CheckSession() (bool, int, error) {
	resp, err := c.get("/tvcoins/details/")
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, resp.StatusCode, nil
}

// currentAccess reads the grant state of one username on one pine script.
func (c *Client) currentAccess(pineID, username string) (GrantResult, error) {
	result := GrantResult{PineID: pineID, Username: username}

	form := url.Values{}
	form.Set("pine_id", pineID)
	form.Set("username", username)

	resp, err := c.postForm("/pine_perm/list_users/?limit=10&order_by=-created", form)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, responseError(resp)
	}

	var payload struct {
		Results []struct {
			Username   string `json:"username"`
			Expiration string `json:"expiration"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return result, fmt.Errorf("error decoding access list response: %v", err)
	}

	for _, entry := range payload.Results {
		if strings.EqualFold(entry.Username, username) {
			result.HasAccess = true
			if entry.Expiration == "" {
				result.NoExpiration = true
			} else {
				result.CurrentExpiration = entry.Expiration
			}
			break
		}
	}

	return result, nil
}

func (c *Client) get(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %v", err)
	}
	return resp, nil
}

func (c *Client) postForm(path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %v", err)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Origin", defaultBaseURL)
	req.Header.Set("Referer", defaultBaseURL)
	if c.SessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.SessionID})
	}
}

// responseError builds the error for a non-2xx TradingView reply. The status
// code is part of the message on purpose: the provisioning layer matches on
// 401/403 to detect an expired session.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("TradingView API error: status=%d, body=%s", resp.StatusCode, string(body))
}

const expirationLayout = "2006-01-02T15:04:05.000Z07:00"

var expirationLayouts = []string{
	expirationLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func parseExpiration(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range expirationLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
