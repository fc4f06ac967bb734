package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/users"
)

// UsersHandler serves the user directory and the caller's own account.
type UsersHandler struct {
	users    *users.Service
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// ProfileRequest is the body for PATCH /api/users/me. Absent fields are left
// untouched.
type ProfileRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Skills    *string `json:"skills"`
	Interests *string `json:"interests"`
}

// RoleRequest is the body for PATCH /api/users/:id/role.
type RoleRequest struct {
	Role string `json:"role"`
}

// NewUsersHandler creates a users handler.
func NewUsersHandler(log *slog.Logger, userService *users.Service, sessions *session.Manager, m *metrics.Metrics) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UsersHandler{
		users:    userService,
		sessions: sessions,
		metrics:  m,
		logger:   log.With(slog.String("handler", "users")),
	}
}

// Register mounts the user routes on the Echo instance.
func (h *UsersHandler) Register(e *echo.Echo) {
	e.GET("/api/users/me", h.Me)
	e.GET("/api/users", h.List)
	e.PATCH("/api/users/me", h.UpdateProfile)
	e.PATCH("/api/users/:id/role", h.ChangeRole)
	e.DELETE("/api/users/me", h.DeleteMe)
}

// Me returns the caller's resolved identity. It answers in every state; an
// anonymous caller gets the anonymous shape, not an error.
func (h *UsersHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, identity.From(c))
}

// List returns every user. Registered callers only.
func (h *UsersHandler) List(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	list, err := h.users.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// UpdateProfile applies a partial self-service profile update.
func (h *UsersHandler) UpdateProfile(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.users.UpdateProfile(c.Request().Context(), ci.ID, store.ProfileUpdate{
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		Skills:    req.Skills,
		Interests: req.Interests,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// ChangeRole assigns a global role. Admin only.
func (h *UsersHandler) ChangeRole(c echo.Context) error {
	if _, err := RequireAdmin(c); err != nil {
		return err
	}
	var req RoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.users.ChangeRole(c.Request().Context(), c.Param("id"), req.Role)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteMe deletes the caller's account after anonymizing everything they
// authored. Cookies are cleared only once the deletion has committed; a
// failure leaves the session usable.
func (h *UsersHandler) DeleteMe(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	if err := h.users.DeleteAccount(c.Request().Context(), ci.ID); err != nil {
		h.metrics.Deletions.WithLabelValues(metrics.ResultError).Inc()
		return httpError(err)
	}
	h.sessions.ClearAll(c)
	h.metrics.Deletions.WithLabelValues(metrics.ResultOK).Inc()
	return c.NoContent(http.StatusNoContent)
}
