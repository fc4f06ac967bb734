// Package handlers provides the HTTP API handlers for the Crewdeck server.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/workspaces"
)

// RequireRegistered returns the resolved identity, or a 401 when the caller
// is not registered.
func RequireRegistered(c echo.Context) (identity.CurrentIdentity, error) {
	ci := identity.From(c)
	if !ci.Registered() {
		return identity.CurrentIdentity{}, echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}
	return ci, nil
}

// RequireAdmin returns the resolved identity, requiring the global Admin role.
func RequireAdmin(c echo.Context) (identity.CurrentIdentity, error) {
	ci, err := RequireRegistered(c)
	if err != nil {
		return identity.CurrentIdentity{}, err
	}
	if !ci.IsAdmin() {
		return identity.CurrentIdentity{}, echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	return ci, nil
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	case errors.Is(err, identity.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, workspaces.ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, "not authorized")
	case errors.Is(err, workspaces.ErrNameMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, "confirmation does not match workspace name")
	case errors.Is(err, workspaces.ErrInviteInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, "invite is invalid or expired")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "request failed, please retry")
	}
}
