package identity

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
)

// ContextKey is the echo context key the resolved identity is stored under.
const ContextKey = "current_identity"

// Resolver resolves the current request's identity from session state and the
// record store.
type Resolver struct {
	users    store.Users
	sessions *session.Manager
	logger   *slog.Logger
}

// NewResolver creates an identity resolver.
func NewResolver(log *slog.Logger, users store.Users, sessions *session.Manager) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		users:    users,
		sessions: sessions,
		logger:   log.With(slog.String("component", "identity")),
	}
}

// Resolve determines who is making the request. It never returns an error:
// a stale user id falls through to the pending cookie, and any storage
// failure degrades to the anonymous state rather than failing open to a
// previous or default identity.
func (r *Resolver) Resolve(c echo.Context) CurrentIdentity {
	ctx := c.Request().Context()

	if userID, ok := r.sessions.UserID(c); ok {
		resolved, err := r.users.Resolved(ctx, userID)
		if err == nil {
			return FromRegistered(resolved)
		}
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("identity lookup failed, treating as logged out",
				slog.String("user_id", userID), slog.Any("error", err))
			return CurrentIdentity{State: StateAnonymous}
		}
		// Stale id, likely a deleted account; fall through to the
		// pending cookie.
		r.logger.Debug("stale user session", slog.String("user_id", userID))
	}

	if pending, ok := r.sessions.Pending(c); ok {
		return FromPending(pending)
	}

	return CurrentIdentity{State: StateAnonymous}
}

// Middleware resolves the identity once per request and stores it in the
// request context for handlers.
func (r *Resolver) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextKey, r.Resolve(c))
			return next(c)
		}
	}
}

// From returns the identity resolved by the middleware; anonymous if the
// middleware did not run.
func From(c echo.Context) CurrentIdentity {
	if ci, ok := c.Get(ContextKey).(CurrentIdentity); ok {
		return ci
	}
	return CurrentIdentity{State: StateAnonymous}
}
