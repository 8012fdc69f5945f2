package tradingview

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeTV simulates the TradingView endpoints the client talks to.
type fakeTV struct {
	// grants holds the current expiration per (pine, username); an empty
	// string means lifetime access
	grants map[string]string

	addCalls    []map[string]string
	modifyCalls []map[string]string
	removeCalls []map[string]string

	// failPine returns 500 on add/modify for this pine id
	failPine string
	// rejectAll responds 403 to every pine_perm call
	rejectAll bool

	lastCookie string
}

func (f *fakeTV) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/username_hint/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"username": "foobar"},
			{"username": "foobar_pro"},
		})
	})

	mux.HandleFunc("/pine_perm/list_users/", func(w http.ResponseWriter, r *http.Request) {
		f.captureCookie(r)
		if f.rejectAll {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"detail": "session invalid"}`)
			return
		}
		r.ParseForm()
		key := r.PostFormValue("pine_id") + "/" + strings.ToLower(r.PostFormValue("username"))
		results := []map[string]string{}
		if expiration, ok := f.grants[key]; ok {
			results = append(results, map[string]string{
				"username":   r.PostFormValue("username"),
				"expiration": expiration,
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	})

	mux.HandleFunc("/pine_perm/add/", func(w http.ResponseWriter, r *http.Request) {
		f.captureCookie(r)
		r.ParseForm()
		call := formMap(r)
		f.addCalls = append(f.addCalls, call)
		if call["pine_id"] == f.failPine {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/pine_perm/modify_user_expiration/", func(w http.ResponseWriter, r *http.Request) {
		f.captureCookie(r)
		r.ParseForm()
		call := formMap(r)
		f.modifyCalls = append(f.modifyCalls, call)
		if call["pine_id"] == f.failPine {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/pine_perm/remove/", func(w http.ResponseWriter, r *http.Request) {
		f.captureCookie(r)
		r.ParseForm()
		f.removeCalls = append(f.removeCalls, formMap(r))
	})

	mux.HandleFunc("/tvcoins/details/", func(w http.ResponseWriter, r *http.Request) {
		f.captureCookie(r)
		if f.rejectAll {
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	return mux
}

func (f *fakeTV) captureCookie(r *http.Request) {
	if cookie, err := r.Cookie("sessionid"); err == nil {
		f.lastCookie = cookie.Value
	}
}

func formMap(r *http.Request) map[string]string {
	m := map[string]string{}
	for key := range r.PostForm {
		m[key] = r.PostFormValue(key)
	}
	return m
}

func newTestClient(t *testing.T, fake *fakeTV, pineIDs []string) *Client {
	t.Helper()

	if fake.grants == nil {
		fake.grants = map[string]string{}
	}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	return NewClient(server.URL, "test-session", pineIDs)
}

func TestValidateUsername_CaseInsensitiveMatch(t *testing.T) {
	client := newTestClient(t, &fakeTV{}, []string{"PUB;1"})

	result, err := client.ValidateUsername("FooBar")

	assert.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "foobar", result.Username)
}

func TestValidateUsername_NoMatchIsNotAnError(t *testing.T) {
	client := newTestClient(t, &fakeTV{}, []string{"PUB;1"})

	result, err := client.ValidateUsername("someone_else")

	assert.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateUsername_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-session", []string{"PUB;1"})

	_, err := client.ValidateUsername("foobar")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

func TestGrantAccess_NewUserExtendsFromNow(t *testing.T) {
	fake := &fakeTV{}
	client := newTestClient(t, fake, []string{"PUB;1"})

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	results, err := client.GrantAccess("foobar", "18M")

	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.False(t, results[0].HasAccess)

	assert.Len(t, fake.addCalls, 1)
	assert.Empty(t, fake.modifyCalls)
	assert.Equal(t, "foobar", fake.addCalls[0]["username_recip"])
	assert.Equal(t, now.AddDate(0, 18, 0).Format(expirationLayout), fake.addCalls[0]["expiration"])
}

func TestGrantAccess_ExistingUserExtendsFromCurrentExpiration(t *testing.T) {
	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeTV{
		grants: map[string]string{
			"PUB;1/foobar": current.Format(expirationLayout),
		},
	}
	client := newTestClient(t, fake, []string{"PUB;1"})
	client.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	results, err := client.GrantAccess("foobar", "6M")

	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.True(t, results[0].HasAccess)

	assert.Empty(t, fake.addCalls)
	assert.Len(t, fake.modifyCalls, 1)
	assert.Equal(t, current.AddDate(0, 6, 0).Format(expirationLayout), fake.modifyCalls[0]["expiration"])
}

func TestGrantAccess_NeverShortensExpiration(t *testing.T) {
	current := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeTV{
		grants: map[string]string{
			"PUB;1/foobar": current.Format(expirationLayout),
		},
	}
	client := newTestClient(t, fake, []string{"PUB;1"})
	// "now" is well before the stored expiration: the new expiration still
	// starts from the stored one
	client.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err := client.GrantAccess("foobar", "1W")
	assert.NoError(t, err)

	assert.Len(t, fake.modifyCalls, 1)
	granted, err := time.Parse(expirationLayout, fake.modifyCalls[0]["expiration"])
	assert.NoError(t, err)
	assert.True(t, granted.After(current), "expiration moved backward")
}

func TestGrantAccess_LifetimeGrantIsNotApplicable(t *testing.T) {
	fake := &fakeTV{
		grants: map[string]string{
			"PUB;1/foobar": "",
		},
	}
	client := newTestClient(t, fake, []string{"PUB;1"})

	results, err := client.GrantAccess("foobar", "6M")

	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, StatusNotApplicable, results[0].Status)
	assert.True(t, results[0].NoExpiration)
	assert.Empty(t, fake.addCalls)
	assert.Empty(t, fake.modifyCalls)
}

func TestGrantAccess_PartialFailureReportsEachIndicator(t *testing.T) {
	fake := &fakeTV{failPine: "PUB;2"}
	client := newTestClient(t, fake, []string{"PUB;1", "PUB;2"})

	results, err := client.GrantAccess("foobar", "6M")

	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailure, results[1].Status)
	assert.Contains(t, results[1].Error, "status=500")
	// both indicators were attempted despite the failure
	assert.Len(t, fake.addCalls, 2)
}

func TestGrantAccess_SessionRejectedCarriesStatusInError(t *testing.T) {
	fake := &fakeTV{rejectAll: true}
	client := newTestClient(t, fake, []string{"PUB;1"})

	results, err := client.GrantAccess("foobar", "6M")

	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, StatusFailure, results[0].Status)
	assert.Contains(t, results[0].Error, "403")
	assert.Contains(t, results[0].Error, "session invalid")
}

func TestGrantAccess_NoPineIDsConfigured(t *testing.T) {
	client := NewClient("http://localhost", "test-session", nil)

	_, err := client.GrantAccess("foobar", "6M")
	assert.Error(t, err)
}

func TestGrantAccess_InvalidDuration(t *testing.T) {
	client := NewClient("http://localhost", "test-session", []string{"PUB;1"})

	_, err := client.GrantAccess("foobar", "soon")
	assert.Error(t, err)
}

func TestRevokeAccess_RemovesEveryIndicator(t *testing.T) {
	fake := &fakeTV{}
	client := newTestClient(t, fake, []string{"PUB;1", "PUB;2"})

	results, err := client.RevokeAccess("foobar")

	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.Len(t, fake.removeCalls, 2)
}

func TestCheckSession(t *testing.T) {
	fake := &fakeTV{}
	client := newTestClient(t, fake, []string{"PUB;1"})

	healthy, status, err := client.CheckSession()
	assert.NoError(t, err)
	assert.True(t, healthy)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test-session", fake.lastCookie)

	fake.rejectAll = true
	healthy, status, err = client.CheckSession()
	assert.NoError(t, err)
	assert.False(t, healthy)
	assert.Equal(t, http.StatusUnauthorized, status)
}
