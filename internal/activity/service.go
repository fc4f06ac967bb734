// Package activity provides the workspace activity log. Actor names are
// denormalized at write time; account deletion rewrites them in place.
package activity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/store"
)

// Service provides activity log reads and writes.
type Service struct {
	activity store.Activity
	logger   *slog.Logger
}

// NewService creates an activity service.
func NewService(log *slog.Logger, st store.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		activity: st.Activity(),
		logger:   log.With(slog.String("service", "activity")),
	}
}

// Record appends an entry under the actor's current name.
func (s *Service) Record(ctx context.Context, actor identity.CurrentIdentity, workspaceID, action, target string) error {
	if _, err := s.activity.Append(ctx, workspaceID, actor.ID, actor.Name, action, target); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return nil
}

// Recent returns the workspace's most recent entries, newest first.
func (s *Service) Recent(ctx context.Context, workspaceID string, limit int) ([]store.ActivityEntry, error) {
	entries, err := s.activity.List(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return entries, nil
}
