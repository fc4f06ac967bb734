package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/chat"
	"github.com/crewdeck/crewdeck/internal/workspaces"
)

// defaultInviteTTL bounds how long an issued invite stays redeemable.
const defaultInviteTTL = 72 * time.Hour

// WorkspacesHandler serves workspace lifecycle, membership, the workspace
// chat, and the activity feed.
type WorkspacesHandler struct {
	workspaces *workspaces.Service
	chat       *chat.Service
	activity   *activity.Service
	logger     *slog.Logger
}

// CreateWorkspaceRequest is the body for POST /api/workspaces.
type CreateWorkspaceRequest struct {
	Name      string `json:"name"`
	ChannelID string `json:"channel_id"`
}

// DeleteWorkspaceRequest carries the typed-out name confirmation for
// DELETE /api/workspaces/:id. The match is exact and case sensitive.
type DeleteWorkspaceRequest struct {
	ConfirmName string `json:"confirm_name"`
}

// JoinWorkspaceRequest is the body for POST /api/workspaces/join.
type JoinWorkspaceRequest struct {
	Token string `json:"token"`
}

// ChatMessageRequest is the body for POST /api/workspaces/:id/chat.
type ChatMessageRequest struct {
	Body string `json:"body"`
}

// NewWorkspacesHandler creates a workspaces handler.
func NewWorkspacesHandler(log *slog.Logger, workspaceService *workspaces.Service, chatService *chat.Service, activityService *activity.Service) *WorkspacesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WorkspacesHandler{
		workspaces: workspaceService,
		chat:       chatService,
		activity:   activityService,
		logger:     log.With(slog.String("handler", "workspaces")),
	}
}

// Register mounts the workspace routes on the Echo instance.
func (h *WorkspacesHandler) Register(e *echo.Echo) {
	e.POST("/api/workspaces", h.Create)
	e.POST("/api/workspaces/join", h.Join)
	e.GET("/api/workspaces/:id", h.Get)
	e.DELETE("/api/workspaces/:id", h.Delete)
	e.POST("/api/workspaces/:id/invites", h.Invite)
	e.GET("/api/workspaces/:id/members", h.Members)
	e.GET("/api/workspaces/:id/activity", h.Activity)
	e.GET("/api/workspaces/:id/chat", h.ChatHistory)
	e.POST("/api/workspaces/:id/chat", h.ChatPost)
}

// Create makes a new workspace owned by the caller.
func (h *WorkspacesHandler) Create(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req CreateWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace name is required")
	}
	ws, err := h.workspaces.Create(c.Request().Context(), ci.ID, req.Name, req.ChannelID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ws)
}

// Join redeems a single-use invite token for the caller.
func (h *WorkspacesHandler) Join(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req JoinWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ws, err := h.workspaces.Join(c.Request().Context(), ci.ID, strings.TrimSpace(req.Token))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ws)
}

// Get returns a workspace by id.
func (h *WorkspacesHandler) Get(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	ws, err := h.workspaces.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ws)
}

// Delete removes a workspace. The service enforces who may delete and the
// typed-name confirmation; nothing is touched unless both checks pass.
func (h *WorkspacesHandler) Delete(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req DeleteWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.workspaces.Delete(c.Request().Context(), ci, c.Param("id"), req.ConfirmName); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Invite issues a single-use invite token for the workspace.
func (h *WorkspacesHandler) Invite(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	inv, err := h.workspaces.Issue(c.Request().Context(), c.Param("id"), ci.ID, defaultInviteTTL)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

// Members lists the workspace's members.
func (h *WorkspacesHandler) Members(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	members, err := h.workspaces.Members(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, members)
}

// Activity returns the workspace's recent activity feed, newest first.
func (h *WorkspacesHandler) Activity(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	entries, err := h.activity.Recent(c.Request().Context(), c.Param("id"), limitParam(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

// ChatHistory returns recent workspace chat messages, newest first.
func (h *WorkspacesHandler) ChatHistory(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	msgs, err := h.chat.History(c.Request().Context(), c.Param("id"), limitParam(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// ChatPost appends a message to the workspace chat under the caller's name.
func (h *WorkspacesHandler) ChatPost(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Body) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message body is required")
	}
	msg, err := h.chat.Post(c.Request().Context(), ci, c.Param("id"), req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// limitParam reads an optional ?limit=N query parameter; 0 means the service
// default.
func limitParam(c echo.Context) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
