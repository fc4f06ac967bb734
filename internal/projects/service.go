// Package projects provides project, task, and comment management.
package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/store"
)

// Service provides project CRUD on top of the record store.
type Service struct {
	projects store.Projects
	activity store.Activity
	logger   *slog.Logger
}

// NewService creates a projects service.
func NewService(log *slog.Logger, st store.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		projects: st.Projects(),
		activity: st.Activity(),
		logger:   log.With(slog.String("service", "projects")),
	}
}

// Create creates a project in the workspace and logs the action under the
// actor's current name.
func (s *Service) Create(ctx context.Context, actor identity.CurrentIdentity, workspaceID, name, description string) (store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Project{}, fmt.Errorf("%w: project name is required", identity.ErrInvalidInput)
	}
	p, err := s.projects.Create(ctx, workspaceID, name, description)
	if err != nil {
		return store.Project{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	s.log(ctx, workspaceID, actor, "created project", p.Name)
	return p, nil
}

// Get returns a project by id.
func (s *Service) Get(ctx context.Context, id string) (store.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Project{}, identity.ErrNotFound
		}
		return store.Project{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return p, nil
}

// ListByWorkspace lists the workspace's projects.
func (s *Service) ListByWorkspace(ctx context.Context, workspaceID string) ([]store.Project, error) {
	projects, err := s.projects.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return projects, nil
}

// SetLead assigns the project lead. Authorization (caller is Admin) is the
// handler's concern.
func (s *Service) SetLead(ctx context.Context, actor identity.CurrentIdentity, projectID, leadUserID string) (store.Project, error) {
	p, err := s.projects.SetLead(ctx, projectID, leadUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Project{}, identity.ErrNotFound
		}
		return store.Project{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	s.log(ctx, p.WorkspaceID, actor, "assigned project lead", p.Name)
	return p, nil
}

// Delete removes a project; its tasks cascade at the store level.
func (s *Service) Delete(ctx context.Context, actor identity.CurrentIdentity, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	s.log(ctx, p.WorkspaceID, actor, "deleted project", p.Name)
	return nil
}

// CreateTask adds a task to a project.
func (s *Service) CreateTask(ctx context.Context, projectID, title, description, assigneeUserID string) (store.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Task{}, fmt.Errorf("%w: task title is required", identity.ErrInvalidInput)
	}
	t, err := s.projects.CreateTask(ctx, projectID, title, description, assigneeUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Task{}, identity.ErrNotFound
		}
		return store.Task{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return t, nil
}

// ListTasks lists the project's tasks.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]store.Task, error) {
	tasks, err := s.projects.ListTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return tasks, nil
}

// MoveTask updates a task's Kanban status.
func (s *Service) MoveTask(ctx context.Context, taskID, status string) (store.Task, error) {
	switch status {
	case store.TaskTodo, store.TaskInProgress, store.TaskDone:
	default:
		return store.Task{}, fmt.Errorf("%w: invalid status %q", identity.ErrInvalidInput, status)
	}
	t, err := s.projects.UpdateTaskStatus(ctx, taskID, status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Task{}, identity.ErrNotFound
		}
		return store.Task{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return t, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.projects.DeleteTask(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.ErrNotFound
		}
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return nil
}

// Comment adds a task comment, snapshotting the author's name at write time.
func (s *Service) Comment(ctx context.Context, actor identity.CurrentIdentity, taskID, body string) (store.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, fmt.Errorf("%w: comment body is required", identity.ErrInvalidInput)
	}
	c, err := s.projects.CreateComment(ctx, taskID, actor.ID, actor.Name, body)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Comment{}, identity.ErrNotFound
		}
		return store.Comment{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return c, nil
}

// Comments lists a task's comments.
func (s *Service) Comments(ctx context.Context, taskID string) ([]store.Comment, error) {
	comments, err := s.projects.ListComments(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return comments, nil
}

func (s *Service) log(ctx context.Context, workspaceID string, actor identity.CurrentIdentity, action, target string) {
	if _, err := s.activity.Append(ctx, workspaceID, actor.ID, actor.Name, action, target); err != nil {
		s.logger.Warn("activity append failed", slog.Any("error", err))
	}
}
