package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/promo-gateway/internal/config"
)

func testConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Enabled:        true,
		GoogleClientID: "client-id",
		AllowedDomain:  "example.com",
		CookieName:     "gateway_session",
		CookieMaxAge:   3600,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	m := NewManager(testConfig(), "https://admin.getmecoupons.net", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/admin/redirects", nil)
	m.RequireAuth(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestRequireAuthDevMode(t *testing.T) {
	m := NewManager(testConfig(), "http://localhost:8080", true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/admin/redirects", nil)
	m.RequireAuth(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	session := m.GetSession(req)
	require.NotNil(t, session)
	assert.Equal(t, "dev@localhost", session.Email)
}

func TestSessionLifecycle(t *testing.T) {
	m := NewManager(testConfig(), "https://admin.getmecoupons.net", false)

	m.sessionMu.Lock()
	m.sessions["sid-1"] = &Session{
		Email:     "ops@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	m.sessionMu.Unlock()

	req := httptest.NewRequest("GET", "/api/admin/redirects", nil)
	req.AddCookie(&http.Cookie{Name: "gateway_session", Value: "sid-1"})

	session := m.GetSession(req)
	require.NotNil(t, session)
	assert.Equal(t, "ops@example.com", session.Email)

	// Expired sessions are dropped on access
	m.sessionMu.Lock()
	m.sessions["sid-1"].ExpiresAt = time.Now().Add(-time.Minute)
	m.sessionMu.Unlock()

	assert.Nil(t, m.GetSession(req))
	m.sessionMu.RLock()
	_, exists := m.sessions["sid-1"]
	m.sessionMu.RUnlock()
	assert.False(t, exists)
}

func TestHandleLogoutClearsSession(t *testing.T) {
	m := NewManager(testConfig(), "https://admin.getmecoupons.net", false)

	m.sessionMu.Lock()
	m.sessions["sid-2"] = &Session{ExpiresAt: time.Now().Add(time.Hour)}
	m.sessionMu.Unlock()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "gateway_session", Value: "sid-2"})
	m.HandleLogout(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	m.sessionMu.RLock()
	_, exists := m.sessions["sid-2"]
	m.sessionMu.RUnlock()
	assert.False(t, exists)
}

func TestHandleLoginRedirectsToGoogle(t *testing.T) {
	m := NewManager(testConfig(), "https://admin.getmecoupons.net", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/auth/login", nil)
	m.HandleLogin(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "accounts.google.com")
	assert.Contains(t, loc, "client-id")
	assert.Contains(t, loc, "hd=example.com")
	assert.Contains(t, loc, "admin.getmecoupons.net%2Fauth%2Fcallback")

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie, "login must set the state cookie")
	assert.True(t, stateCookie.HttpOnly)
	assert.NotEmpty(t, stateCookie.Value)
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	m := NewManager(testConfig(), "https://admin.getmecoupons.net", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/auth/callback?state=forged&code=x", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "real"})
	m.HandleCallback(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("Location"), "error=invalid_state"))
}
