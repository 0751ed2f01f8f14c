// Package auth implements Google OAuth login for the admin API. Sessions
// are held in memory; a gateway restart logs everyone out, which is
// acceptable for an internal tool with a handful of operators.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/pkg/httputil"
)

const stateCookieName = "oauth_state"

// googleUserInfo is the profile returned by Google's userinfo endpoint.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HD            string `json:"hd"` // hosted domain for Workspace accounts
}

// Session is one authenticated operator session.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager handles the OAuth flow and session lifecycle.
type Manager struct {
	cfg          *config.AuthConfig
	oauth2Config *oauth2.Config
	sessions     map[string]*Session
	sessionMu    sync.RWMutex
	devMode      bool
}

// NewManager creates an auth manager. baseURL is the externally reachable
// origin of the gateway, used to build the OAuth redirect URL. In dev
// mode every request passes RequireAuth with a synthetic session.
func NewManager(cfg *config.AuthConfig, baseURL string, devMode bool) *Manager {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  strings.TrimRight(baseURL, "/") + "/auth/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}

	return &Manager{
		cfg:          cfg,
		oauth2Config: oauth2Config,
		sessions:     make(map[string]*Session),
		devMode:      devMode,
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HandleLogin initiates the Google OAuth flow.
func (m *Manager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in a cookie for callback verification
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	url := m.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
	if m.cfg.AllowedDomain != "" {
		url += "&hd=" + m.cfg.AllowedDomain
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleCallback processes the OAuth callback from Google.
func (m *Manager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		log.Printf("[Auth] No state cookie found: %v", err)
		http.Redirect(w, r, "/admin?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		log.Printf("[Auth] State mismatch")
		http.Redirect(w, r, "/admin?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		log.Printf("[Auth] Google returned error: %s", errMsg)
		http.Redirect(w, r, "/admin?error="+errMsg, http.StatusTemporaryRedirect)
		return
	}

	code := r.URL.Query().Get("code")
	token, err := m.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("[Auth] Failed to exchange code: %v", err)
		http.Redirect(w, r, "/admin?error=exchange_failed", http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := m.getUserInfo(token.AccessToken)
	if err != nil {
		log.Printf("[Auth] Failed to get user info: %v", err)
		http.Redirect(w, r, "/admin?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}

	if m.cfg.AllowedDomain != "" {
		parts := strings.Split(userInfo.Email, "@")
		if len(parts) != 2 || parts[1] != m.cfg.AllowedDomain {
			log.Printf("[Auth] Domain not allowed: %s (expected %s)", userInfo.Email, m.cfg.AllowedDomain)
			http.Redirect(w, r, "/admin?error=domain_not_allowed", http.StatusTemporaryRedirect)
			return
		}
	}

	sessionID, err := randomToken()
	if err != nil {
		log.Printf("[Auth] Failed to generate session ID: %v", err)
		http.Redirect(w, r, "/admin?error=session_failed", http.StatusTemporaryRedirect)
		return
	}

	session := &Session{
		UserID:    userInfo.ID,
		Email:     userInfo.Email,
		Name:      userInfo.Name,
		Picture:   userInfo.Picture,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Duration(m.cfg.CookieMaxAge) * time.Second),
	}

	m.sessionMu.Lock()
	m.sessions[sessionID] = session
	m.sessionMu.Unlock()

	log.Printf("[Auth] User logged in: %s (%s)", userInfo.Email, userInfo.Name)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   m.cfg.CookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/admin", http.StatusTemporaryRedirect)
}

// HandleLogout drops the current session.
func (m *Manager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err == nil {
		m.sessionMu.Lock()
		delete(m.sessions, cookie.Value)
		m.sessionMu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:   m.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	http.Redirect(w, r, "/admin", http.StatusTemporaryRedirect)
}

// HandleUserInfo returns the current user as JSON for the admin UI.
func (m *Manager) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	session := m.GetSession(r)
	if session == nil {
		httputil.JSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}

	httputil.OK(w, map[string]any{
		"authenticated": true,
		"user": map[string]string{
			"id":      session.UserID,
			"email":   session.Email,
			"name":    session.Name,
			"picture": session.Picture,
		},
	})
}

// GetSession returns the session for the request, or nil when not
// authenticated. In dev mode a synthetic session is returned so handlers
// always have an identity to attribute changes to.
func (m *Manager) GetSession(r *http.Request) *Session {
	if m.devMode {
		return &Session{UserID: "dev", Email: "dev@localhost", Name: "Dev Mode"}
	}

	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return nil
	}

	m.sessionMu.RLock()
	session, exists := m.sessions[cookie.Value]
	m.sessionMu.RUnlock()

	if !exists {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		m.sessionMu.Lock()
		delete(m.sessions, cookie.Value)
		m.sessionMu.Unlock()
		return nil
	}

	return session
}

// IsAuthenticated reports whether the request carries a valid session.
func (m *Manager) IsAuthenticated(r *http.Request) bool {
	return m.GetSession(r) != nil
}

// RequireAuth guards admin endpoints. The admin surface is JSON-only, so
// unauthenticated requests get a 401 envelope rather than a redirect.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.IsAuthenticated(r) {
			httputil.Unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Manager) getUserInfo(accessToken string) (*googleUserInfo, error) {
	resp, err := http.Get("https://www.googleapis.com/oauth2/v2/userinfo?access_token=" + accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API error: %s", string(body))
	}

	var userInfo googleUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}

	return &userInfo, nil
}

// ValidateCredentials probes Google's token endpoint with a dummy code to
// verify the OAuth client ID and secret at boot instead of at first
// login. Google answers "invalid_grant" for a bad code on a valid client
// and "invalid_client" for rejected credentials, which tells them apart.
func (m *Manager) ValidateCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	vals := fmt.Sprintf("grant_type=authorization_code&code=validation_probe&client_id=%s&client_secret=%s&redirect_uri=%s",
		m.oauth2Config.ClientID, m.oauth2Config.ClientSecret, m.oauth2Config.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, "POST", google.Endpoint.TokenURL, strings.NewReader(vals))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if strings.Contains(bodyStr, "invalid_grant") || strings.Contains(bodyStr, "invalid_request") || strings.Contains(bodyStr, "redirect_uri_mismatch") {
		return nil
	}
	if strings.Contains(bodyStr, "invalid_client") {
		return fmt.Errorf("google OAuth client_id or client_secret rejected, check credentials for client %s...", truncateID(m.oauth2Config.ClientID))
	}

	return fmt.Errorf("unexpected response from Google token endpoint (HTTP %d): %s", resp.StatusCode, bodyStr)
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// StartSessionCleanup evicts expired sessions every 5 minutes until the
// context is cancelled.
func (m *Manager) StartSessionCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sessionMu.Lock()
				now := time.Now()
				for id, session := range m.sessions {
					if now.After(session.ExpiresAt) {
						delete(m.sessions, id)
					}
				}
				m.sessionMu.Unlock()
			}
		}
	}()
}
