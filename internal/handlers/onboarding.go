package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/users"
	"github.com/crewdeck/crewdeck/internal/workspaces"
)

// OnboardingHandler completes registration: it turns the pending cookie into
// a durable user record and applies the workspace intent captured at login.
type OnboardingHandler struct {
	users      *users.Service
	workspaces *workspaces.Service
	sessions   *session.Manager
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// OnboardingRequest is the body for POST /api/onboarding.
type OnboardingRequest struct {
	Name      string `json:"name"`
	Skills    string `json:"skills"`
	Interests string `json:"interests"`
}

// NewOnboardingHandler creates an onboarding handler.
func NewOnboardingHandler(log *slog.Logger, userService *users.Service, workspaceService *workspaces.Service, sessions *session.Manager, m *metrics.Metrics) *OnboardingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OnboardingHandler{
		users:      userService,
		workspaces: workspaceService,
		sessions:   sessions,
		metrics:    m,
		logger:     log.With(slog.String("handler", "onboarding")),
	}
}

// Register mounts POST /api/onboarding on the Echo instance.
func (h *OnboardingHandler) Register(e *echo.Echo) {
	e.POST("/api/onboarding", h.Complete)
}

// Complete finishes registration for the pending caller. The flow cookies are
// consumed here: a "create" intent makes a new workspace owned by the caller,
// a "join" intent redeems an invite. Either one failing leaves the
// registration itself intact.
func (h *OnboardingHandler) Complete(c echo.Context) error {
	pending, ok := h.sessions.Pending(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no pending identity")
	}

	var req OnboardingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	flow := h.sessions.Flow(c)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(flow.Name)
	}

	ctx := c.Request().Context()
	u, err := h.users.Register(ctx, pending, name, req.Skills, req.Interests)
	if err != nil {
		h.metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return httpError(err)
	}

	switch flow.Mode {
	case "create":
		if _, err := h.workspaces.Create(ctx, u.ID, flow.Value, ""); err != nil {
			h.logger.Warn("workspace create after onboarding failed",
				slog.String("user_id", u.ID), slog.String("error", err.Error()))
		}
	case "join":
		if _, err := h.workspaces.Join(ctx, u.ID, flow.Value); err != nil {
			h.logger.Warn("workspace join after onboarding failed",
				slog.String("user_id", u.ID), slog.String("error", err.Error()))
		}
	}

	if err := h.sessions.SetUser(c, u.ID); err != nil {
		h.metrics.Registrations.WithLabelValues(metrics.ResultError).Inc()
		return echo.NewHTTPError(http.StatusInternalServerError, "session could not be issued")
	}
	h.sessions.ClearFlow(c)
	h.metrics.Registrations.WithLabelValues(metrics.ResultOK).Inc()

	return c.JSON(http.StatusOK, u)
}
