// Package chat provides workspace chat messages. Ephemeral presence (typing
// indicators) is not handled here.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/store"
)

// Service provides chat message persistence.
type Service struct {
	chat   store.Chat
	logger *slog.Logger
}

// NewService creates a chat service.
func NewService(log *slog.Logger, st store.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		chat:   st.Chat(),
		logger: log.With(slog.String("service", "chat")),
	}
}

// Post appends a chat message, snapshotting the author's name at write time.
func (s *Service) Post(ctx context.Context, actor identity.CurrentIdentity, workspaceID, body string) (store.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.ChatMessage{}, fmt.Errorf("%w: message body is required", identity.ErrInvalidInput)
	}
	m, err := s.chat.Append(ctx, workspaceID, actor.ID, actor.Name, body)
	if err != nil {
		return store.ChatMessage{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return m, nil
}

// History returns the workspace's most recent messages, newest first.
func (s *Service) History(ctx context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	messages, err := s.chat.List(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return messages, nil
}
