package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow_RegisterLoginRefreshLogout(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	email := UniqueEmail("authflow")

	// First login auto-registers.
	token, userID := ts.Login(t, email, "secretpass")
	require.NotEmpty(t, token)
	require.NotZero(t, userID)

	// Second login with the same password works.
	token2, userID2 := ts.Login(t, email, "secretpass")
	assert.Equal(t, userID, userID2)
	assert.NotEmpty(t, token2)

	// Wrong password is rejected.
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"email": email, "password": "wrong",
	}, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Refresh rotates the token and invalidates the old one.
	resp = ts.PostJSON(t, "/api/auth/refresh", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed map[string]interface{}
	ReadJSON(t, resp, &refreshed)
	newToken := refreshed["token"].(string)
	require.NotEqual(t, token, newToken)

	resp = ts.Get(t, "/api/users/me", token)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.Get(t, "/api/users/me", newToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Logout invalidates the session.
	resp = ts.PostJSON(t, "/api/auth/logout", nil, newToken)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.Get(t, "/api/users/me", newToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfile_UpdateAndCard(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _ := ts.Login(t, UniqueEmail("profile"), "secretpass")

	resp := ts.Patch(t, "/api/users/me", map[string]string{
		"nick": "renamed_" + UniqueEmail("x")[:8],
	}, token)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.Get(t, "/api/users/me", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me map[string]interface{}
	ReadJSON(t, resp, &me)
	nick := me["nick"].(string)

	// Public card is visible to another user.
	otherToken, _ := ts.Login(t, UniqueEmail("viewer"), "secretpass")
	resp = ts.Get(t, "/api/users/"+nick, otherToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var card map[string]interface{}
	ReadJSON(t, resp, &card)
	assert.Equal(t, nick, card["nick"])
	assert.Equal(t, "offline", card["status"])
}

func TestHealthAndAdminGuard(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	resp := ts.Get(t, "/health", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Admin endpoints need the admin key header.
	resp = ts.Get(t, "/api/admin/metrics", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest("GET", ts.URL+"/api/admin/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
