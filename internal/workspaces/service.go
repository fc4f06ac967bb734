// Package workspaces provides workspace, membership, and invite management.
package workspaces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/store"
)

// Errors returned by workspace operations.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrNameMismatch  = errors.New("confirmation does not match workspace name")
	ErrInviteInvalid = errors.New("invite is invalid or expired")
)

// DefaultInviteTTL is the invite lifetime when none is given.
const DefaultInviteTTL = 24 * time.Hour

// Policy holds workspace authorization policy. Whether a global Admin may
// delete a workspace they do not own is deliberately configurable.
type Policy struct {
	AllowGlobalAdminDelete bool
}

// Service provides workspace management.
type Service struct {
	workspaces store.Workspaces
	invites    store.Invites
	users      store.Users
	activity   store.Activity
	policy     Policy
	logger     *slog.Logger
}

// NewService creates a workspaces service.
func NewService(log *slog.Logger, st store.Store, policy Policy) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		workspaces: st.Workspaces(),
		invites:    st.Invites(),
		users:      st.Users(),
		activity:   st.Activity(),
		policy:     policy,
		logger:     log.With(slog.String("service", "workspaces")),
	}
}

// Get returns a workspace by id.
func (s *Service) Get(ctx context.Context, id string) (store.Workspace, error) {
	ws, err := s.workspaces.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Workspace{}, identity.ErrNotFound
		}
		return store.Workspace{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return ws, nil
}

// Members lists the workspace's members.
func (s *Service) Members(ctx context.Context, workspaceID string) ([]store.User, error) {
	members, err := s.workspaces.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return members, nil
}

// Create creates a workspace owned by the given user, grants the owner a
// membership with the Admin membership role, and makes the workspace the
// owner's primary one when they have none yet.
func (s *Service) Create(ctx context.Context, ownerUserID, name, channelID string) (store.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Workspace{}, fmt.Errorf("%w: workspace name is required", identity.ErrInvalidInput)
	}

	ws, err := s.workspaces.Create(ctx, name, ownerUserID, channelID)
	if err != nil {
		return store.Workspace{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	if _, err := s.workspaces.AddMembership(ctx, ownerUserID, ws.ID, store.MembershipAdmin); err != nil {
		return store.Workspace{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	if err := s.adoptAsPrimary(ctx, ownerUserID, ws.ID); err != nil {
		return store.Workspace{}, err
	}

	if owner, err := s.users.Get(ctx, ownerUserID); err == nil {
		if _, err := s.activity.Append(ctx, ws.ID, owner.ID, owner.Name, "created workspace", ws.Name); err != nil {
			s.logger.Warn("activity append failed", slog.Any("error", err))
		}
	}

	s.logger.Info("workspace created", slog.String("workspace_id", ws.ID))
	return ws, nil
}

// Join redeems an invite code and adds the user as a Member. Joining a
// workspace the user already belongs to is a no-op.
func (s *Service) Join(ctx context.Context, userID, token string) (store.Workspace, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return store.Workspace{}, fmt.Errorf("%w: invite code is required", identity.ErrInvalidInput)
	}

	inv, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Workspace{}, ErrInviteInvalid
		}
		return store.Workspace{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	if !inv.UsedAt.IsZero() || time.Now().After(inv.ExpiresAt) {
		return store.Workspace{}, ErrInviteInvalid
	}

	ws, err := s.workspaces.Get(ctx, inv.WorkspaceID)
	if err != nil {
		return store.Workspace{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}

	if _, err := s.workspaces.AddMembership(ctx, userID, ws.ID, store.MembershipMember); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return store.Workspace{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
		}
	}
	if _, err := s.invites.MarkUsed(ctx, inv.ID, userID); err != nil {
		s.logger.Warn("mark invite used failed", slog.Any("error", err))
	}
	if err := s.adoptAsPrimary(ctx, userID, ws.ID); err != nil {
		return store.Workspace{}, err
	}

	if u, err := s.users.Get(ctx, userID); err == nil {
		if _, err := s.activity.Append(ctx, ws.ID, u.ID, u.Name, "joined workspace", ws.Name); err != nil {
			s.logger.Warn("activity append failed", slog.Any("error", err))
		}
	}
	return ws, nil
}

// Delete removes a workspace. The caller must be the owner or hold the Admin
// membership role in that workspace; a global Admin qualifies only when
// policy allows it. The confirmation string must match the stored workspace
// name exactly (case-sensitive).
func (s *Service) Delete(ctx context.Context, caller identity.CurrentIdentity, workspaceID, confirmName string) error {
	if !caller.Registered() {
		return identity.ErrUnauthenticated
	}
	ws, err := s.workspaces.Get(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.ErrNotFound
		}
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}

	if !s.mayDelete(ctx, caller, ws) {
		return ErrNotAuthorized
	}
	if confirmName != ws.Name {
		return ErrNameMismatch
	}

	if err := s.workspaces.Delete(ctx, ws.ID); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	s.logger.Info("workspace deleted",
		slog.String("workspace_id", ws.ID), slog.String("by", caller.ID))
	return nil
}

func (s *Service) mayDelete(ctx context.Context, caller identity.CurrentIdentity, ws store.Workspace) bool {
	if ws.OwnerUserID != "" && ws.OwnerUserID == caller.ID {
		return true
	}
	if m, err := s.workspaces.MembershipFor(ctx, caller.ID, ws.ID); err == nil && m.Role == store.MembershipAdmin {
		return true
	}
	return s.policy.AllowGlobalAdminDelete && caller.IsAdmin()
}

// Issue creates a single-use invite code for the workspace.
func (s *Service) Issue(ctx context.Context, workspaceID, issuedByUserID string, ttl time.Duration) (store.Invite, error) {
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	inv, err := s.invites.Create(ctx, workspaceID, token, issuedByUserID, time.Now().UTC().Add(ttl))
	if err != nil {
		return store.Invite{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return inv, nil
}

// PurgeExpiredInvites deletes invites past their expiry.
func (s *Service) PurgeExpiredInvites(ctx context.Context) (int64, error) {
	return s.invites.PurgeExpired(ctx, time.Now().UTC())
}

func (s *Service) adoptAsPrimary(ctx context.Context, userID, workspaceID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	if u.WorkspaceID != "" {
		return nil
	}
	if err := s.users.SetPrimaryWorkspace(ctx, userID, workspaceID); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return nil
}
