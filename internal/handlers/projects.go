package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/projects"
)

// ProjectsHandler serves projects, their task boards, and task comments.
type ProjectsHandler struct {
	projects *projects.Service
	logger   *slog.Logger
}

// CreateProjectRequest is the body for POST /api/workspaces/:id/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SetLeadRequest is the body for PATCH /api/projects/:id/lead.
type SetLeadRequest struct {
	UserID string `json:"user_id"`
}

// CreateTaskRequest is the body for POST /api/projects/:id/tasks.
type CreateTaskRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	AssigneeUserID string `json:"assignee_user_id"`
}

// MoveTaskRequest is the body for PATCH /api/tasks/:id/status.
type MoveTaskRequest struct {
	Status string `json:"status"`
}

// CommentRequest is the body for POST /api/tasks/:id/comments.
type CommentRequest struct {
	Body string `json:"body"`
}

// NewProjectsHandler creates a projects handler.
func NewProjectsHandler(log *slog.Logger, projectService *projects.Service) *ProjectsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProjectsHandler{
		projects: projectService,
		logger:   log.With(slog.String("handler", "projects")),
	}
}

// Register mounts the project, task, and comment routes on the Echo instance.
func (h *ProjectsHandler) Register(e *echo.Echo) {
	e.POST("/api/workspaces/:id/projects", h.Create)
	e.GET("/api/workspaces/:id/projects", h.ListByWorkspace)
	e.GET("/api/projects/:id", h.Get)
	e.DELETE("/api/projects/:id", h.Delete)
	e.PATCH("/api/projects/:id/lead", h.SetLead)
	e.POST("/api/projects/:id/tasks", h.CreateTask)
	e.GET("/api/projects/:id/tasks", h.ListTasks)
	e.PATCH("/api/tasks/:id/status", h.MoveTask)
	e.DELETE("/api/tasks/:id", h.DeleteTask)
	e.POST("/api/tasks/:id/comments", h.Comment)
	e.GET("/api/tasks/:id/comments", h.Comments)
}

// Create adds a project to the workspace.
func (h *ProjectsHandler) Create(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project name is required")
	}
	p, err := h.projects.Create(c.Request().Context(), ci, c.Param("id"), req.Name, req.Description)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ListByWorkspace returns the workspace's projects.
func (h *ProjectsHandler) ListByWorkspace(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	list, err := h.projects.ListByWorkspace(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns a project by id.
func (h *ProjectsHandler) Get(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	p, err := h.projects.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a project and everything under it.
func (h *ProjectsHandler) Delete(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	if err := h.projects.Delete(c.Request().Context(), ci, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetLead assigns the project lead. Admin only.
func (h *ProjectsHandler) SetLead(c echo.Context) error {
	ci, err := RequireAdmin(c)
	if err != nil {
		return err
	}
	var req SetLeadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.projects.SetLead(c.Request().Context(), ci, c.Param("id"), req.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreateTask adds a task to the project board.
func (h *ProjectsHandler) CreateTask(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task title is required")
	}
	t, err := h.projects.CreateTask(c.Request().Context(), c.Param("id"), req.Title, req.Description, req.AssigneeUserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

// ListTasks returns the project's tasks.
func (h *ProjectsHandler) ListTasks(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	list, err := h.projects.ListTasks(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// MoveTask moves a task to a new board column.
func (h *ProjectsHandler) MoveTask(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	var req MoveTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.projects.MoveTask(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

// DeleteTask removes a task and its comments.
func (h *ProjectsHandler) DeleteTask(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	if err := h.projects.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Comment appends a comment to a task under the caller's name.
func (h *ProjectsHandler) Comment(c echo.Context) error {
	ci, err := RequireRegistered(c)
	if err != nil {
		return err
	}
	var req CommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cm, err := h.projects.Comment(c.Request().Context(), ci, c.Param("id"), req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cm)
}

// Comments returns a task's comments, oldest first.
func (h *ProjectsHandler) Comments(c echo.Context) error {
	if _, err := RequireRegistered(c); err != nil {
		return err
	}
	list, err := h.projects.Comments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}
