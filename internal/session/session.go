// Package session owns the cookie wire format: the signed user session, the
// transient external-identity snapshot held while onboarding is pending, the
// opaque provider token, and the short-lived flow-state cookies that survive
// the redirect to the OAuth provider.
package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Cookie names. CookieUser denotes a registered session, CookiePending a
// pending (or already registered) external session.
const (
	CookieUser          = "crew_uid"
	CookiePending       = "crew_discord"
	CookieProviderToken = "discord_token"
	CookieJoinMode      = "join_mode"
	CookieJoinValue     = "join_value"
	CookieJoinName      = "join_name"
	CookieOAuthState    = "oauth_state"
)

// Default cookie lifetimes.
const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultFlowTTL    = 10 * time.Minute
)

// PendingIdentity is the external profile captured at OAuth callback time.
// It lives only in the pending cookie; onboarding reads it and produces a
// durable user.
type PendingIdentity struct {
	ExternalID    string `json:"external_id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Email         string `json:"email,omitempty"`
}

// FlowState carries the join mode, join target value, and chosen display name
// across the provider redirect.
type FlowState struct {
	Mode  string
	Value string
	Name  string
}

// Manager signs, reads, and clears session cookies. Decode failures are
// reported as absence, never as errors.
type Manager struct {
	secret     []byte
	sessionTTL time.Duration
	flowTTL    time.Duration
	secure     bool
	now        func() time.Time
}

// NewManager creates a session manager. Zero TTLs fall back to the defaults.
func NewManager(secret string, sessionTTL, flowTTL time.Duration, secure bool) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if flowTTL <= 0 {
		flowTTL = DefaultFlowTTL
	}
	return &Manager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		flowTTL:    flowTTL,
		secure:     secure,
		now:        time.Now,
	}
}

// Secret returns the signing secret; the registered-only route guard shares it.
func (m *Manager) Secret() []byte { return m.secret }

type pendingClaims struct {
	jwt.RegisteredClaims
	Profile PendingIdentity `json:"profile"`
}

// SetUser promotes the session to registered by setting the signed user-id
// cookie.
func (m *Manager) SetUser(c echo.Context, userID string) error {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return err
	}
	m.setCookie(c, CookieUser, signed, m.sessionTTL)
	return nil
}

// UserID returns the registered user id from the session, if present and
// validly signed.
func (m *Manager) UserID(c echo.Context) (string, bool) {
	raw, ok := m.cookieValue(c, CookieUser)
	if !ok {
		return "", false
	}
	claims := &jwt.RegisteredClaims{}
	if !m.parse(raw, claims) || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// SetPending stores the external profile snapshot as a signed expiring cookie.
func (m *Manager) SetPending(c echo.Context, p PendingIdentity) error {
	now := m.now()
	claims := pendingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ExternalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
		},
		Profile: p,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return err
	}
	m.setCookie(c, CookiePending, signed, m.sessionTTL)
	return nil
}

// Pending returns the external profile snapshot, if present and validly signed.
func (m *Manager) Pending(c echo.Context) (PendingIdentity, bool) {
	raw, ok := m.cookieValue(c, CookiePending)
	if !ok {
		return PendingIdentity{}, false
	}
	claims := &pendingClaims{}
	if !m.parse(raw, claims) || claims.Profile.ExternalID == "" {
		return PendingIdentity{}, false
	}
	return claims.Profile, true
}

// SetProviderToken stores the opaque bearer credential with the provider's
// expiry.
func (m *Manager) SetProviderToken(c echo.Context, token string, expiry time.Time) {
	ttl := m.sessionTTL
	if !expiry.IsZero() {
		ttl = time.Until(expiry)
	}
	if ttl <= 0 {
		return
	}
	m.setCookie(c, CookieProviderToken, token, ttl)
}

// ProviderToken returns the stored bearer credential, if any.
func (m *Manager) ProviderToken(c echo.Context) (string, bool) {
	return m.cookieValue(c, CookieProviderToken)
}

// SetFlow stores the flow-state cookies for the redirect round-trip.
func (m *Manager) SetFlow(c echo.Context, f FlowState) {
	m.setCookie(c, CookieJoinMode, f.Mode, m.flowTTL)
	m.setCookie(c, CookieJoinValue, f.Value, m.flowTTL)
	m.setCookie(c, CookieJoinName, f.Name, m.flowTTL)
}

// Flow returns whatever flow-state cookies survived the round-trip; missing
// cookies yield empty fields.
func (m *Manager) Flow(c echo.Context) FlowState {
	var f FlowState
	f.Mode, _ = m.cookieValue(c, CookieJoinMode)
	f.Value, _ = m.cookieValue(c, CookieJoinValue)
	f.Name, _ = m.cookieValue(c, CookieJoinName)
	return f
}

// ClearFlow expires the flow-state cookies.
func (m *Manager) ClearFlow(c echo.Context) {
	m.expire(c, CookieJoinMode)
	m.expire(c, CookieJoinValue)
	m.expire(c, CookieJoinName)
}

// SetOAuthState stores the CSRF state nonce for the provider redirect.
func (m *Manager) SetOAuthState(c echo.Context, state string) {
	m.setCookie(c, CookieOAuthState, state, m.flowTTL)
}

// OAuthState returns the stored CSRF state nonce, if any.
func (m *Manager) OAuthState(c echo.Context) (string, bool) {
	return m.cookieValue(c, CookieOAuthState)
}

// ClearAll expires every session cookie. Clearing is idempotent.
func (m *Manager) ClearAll(c echo.Context) {
	m.expire(c, CookieUser)
	m.expire(c, CookiePending)
	m.expire(c, CookieProviderToken)
	m.expire(c, CookieOAuthState)
	m.ClearFlow(c)
}

func (m *Manager) parse(raw string, claims jwt.Claims) bool {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	return err == nil && token.Valid
}

func (m *Manager) setCookie(c echo.Context, name, value string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) expire(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) cookieValue(c echo.Context, name string) (string, bool) {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
