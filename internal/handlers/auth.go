package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/discord"
	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/users"
)

// AuthHandler drives the Discord OAuth flow: it sends the browser to the
// provider, handles the callback, and clears the session on logout.
type AuthHandler struct {
	oauth    *discord.Client
	users    *users.Service
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(log *slog.Logger, oauth *discord.Client, userService *users.Service, sessions *session.Manager, m *metrics.Metrics) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		oauth:    oauth,
		users:    userService,
		sessions: sessions,
		metrics:  m,
		logger:   log.With(slog.String("handler", "auth")),
	}
}

// Register mounts the OAuth routes on the Echo instance.
func (h *AuthHandler) Register(e *echo.Echo) {
	e.GET("/auth/login", h.Login)
	e.GET("/auth/callback", h.Callback)
	e.POST("/auth/logout", h.Logout)
}

// Login starts the OAuth flow. Optional mode/value/name query parameters
// capture the caller's workspace intent (create or join) in short-lived flow
// cookies so the choice survives the provider round-trip.
func (h *AuthHandler) Login(c echo.Context) error {
	flow := session.FlowState{
		Mode:  c.QueryParam("mode"),
		Value: c.QueryParam("value"),
		Name:  c.QueryParam("name"),
	}
	if flow.Mode != "" {
		h.sessions.SetFlow(c, flow)
	}

	state := uuid.NewString()
	h.sessions.SetOAuthState(c, state)
	return c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// Callback handles the provider redirect. Any failure along the way lands the
// caller back on the login page in the anonymous state; nothing durable has
// been signed at that point.
func (h *AuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	want, ok := h.sessions.OAuthState(c)
	if !ok || want == "" || c.QueryParam("state") != want {
		h.logger.Warn("oauth state mismatch")
		return h.fail(c)
	}
	code := c.QueryParam("code")
	if code == "" {
		return h.fail(c)
	}

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("oauth exchange failed", slog.String("error", err.Error()))
		return h.fail(c)
	}
	profile, err := h.oauth.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		h.logger.Warn("profile fetch failed", slog.String("error", err.Error()))
		return h.fail(c)
	}

	pending := session.PendingIdentity{
		ExternalID:    profile.ID,
		Username:      profile.Username,
		Discriminator: profile.Discriminator,
		DisplayName:   profile.GlobalName,
		AvatarURL:     profile.AvatarURL(),
		Email:         profile.Email,
	}
	if err := h.sessions.SetPending(c, pending); err != nil {
		h.logger.Error("sign pending cookie failed", slog.String("error", err.Error()))
		return h.fail(c)
	}
	h.sessions.SetProviderToken(c, token.AccessToken, token.Expiry)

	// Returning users skip onboarding entirely. A lookup failure is not
	// fatal here: the pending cookie alone is a working session.
	u, err := h.users.FindByExternal(ctx, pending)
	switch {
	case err == nil && u.Onboarded:
		if err := h.sessions.SetUser(c, u.ID); err != nil {
			h.logger.Error("sign session cookie failed", slog.String("error", err.Error()))
			return h.fail(c)
		}
		h.metrics.Logins.WithLabelValues(metrics.ResultOK).Inc()
		return c.Redirect(http.StatusFound, "/")
	case errors.Is(err, identity.ErrNotFound):
		if _, err := h.users.EagerCreate(ctx, pending); err != nil {
			h.logger.Warn("eager create failed", slog.String("error", err.Error()))
		}
	case err != nil:
		h.logger.Warn("lookup by external id failed", slog.String("error", err.Error()))
	}

	h.metrics.Logins.WithLabelValues(metrics.ResultOK).Inc()
	return c.Redirect(http.StatusFound, "/onboarding")
}

// Logout clears every session cookie. It never fails.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.sessions.ClearAll(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) fail(c echo.Context) error {
	h.metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
	return c.Redirect(http.StatusFound, "/login?error=oauth")
}
