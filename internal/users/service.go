// Package users owns the two identity lifecycle transitions: registration
// (pending to registered, exactly once per external identity) and account
// deletion (anonymize authored content, then remove the record).
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
)

// DeletedUserName is the sentinel written over the author-name snapshot of
// everything a deleted user authored.
const DeletedUserName = "Deleted User"

// JoinNotifier announces a completed onboarding. Implementations must be
// best-effort; a send failure never fails the registration.
type JoinNotifier interface {
	UserJoined(ctx context.Context, name string)
}

// Service provides user lifecycle management.
type Service struct {
	users    store.Users
	projects store.Projects
	chat     store.Chat
	activity store.Activity
	notifier JoinNotifier
	logger   *slog.Logger
}

// NewService creates a users service. notifier may be nil.
func NewService(log *slog.Logger, st store.Store, notifier JoinNotifier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:    st.Users(),
		projects: st.Projects(),
		chat:     st.Chat(),
		activity: st.Activity(),
		notifier: notifier,
		logger:   log.With(slog.String("service", "users")),
	}
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (store.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, identity.ErrNotFound
		}
		return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return u, nil
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]store.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return users, nil
}

// FindByExternal returns the user already associated with the external
// identity, matching the discord id, the profile email, or the placeholder
// email.
func (s *Service) FindByExternal(ctx context.Context, pending session.PendingIdentity) (store.User, error) {
	if pending.ExternalID == "" {
		return store.User{}, identity.ErrUnauthenticated
	}
	u, err := s.users.Reconcile(ctx, pending.ExternalID, pending.Email, identity.PlaceholderEmail(pending.ExternalID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, identity.ErrNotFound
		}
		return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return u, nil
}

// EagerCreate creates the durable record at first OAuth callback, before
// onboarding has run. The record is not yet onboarded; registration later
// takes the update path against it. Losing a creation race to a concurrent
// callback is fine: the existing record is returned.
func (s *Service) EagerCreate(ctx context.Context, pending session.PendingIdentity) (store.User, error) {
	if pending.ExternalID == "" {
		return store.User{}, identity.ErrUnauthenticated
	}
	name := pending.DisplayName
	if name == "" {
		name = pending.Username
	}
	email := pending.Email
	if email == "" {
		email = identity.PlaceholderEmail(pending.ExternalID)
	}
	u, err := s.users.Create(ctx, store.NewUser{
		DiscordID: pending.ExternalID,
		Email:     email,
		Name:      name,
		AvatarURL: pending.AvatarURL,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return s.FindByExternal(ctx, pending)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return u, nil
}

// Register moves a caller from pending to registered. The lookup reconciles
// users created via different code paths: a match on the discord id, the
// profile email, or the placeholder email triggers the update path, which
// preserves the existing role and workspace. Otherwise a new user is created;
// the creation that wins the store's bootstrap claim gets the Admin role.
// Idempotent under retry: a second call with the same external identity takes
// the update path.
func (s *Service) Register(ctx context.Context, pending session.PendingIdentity, name, skills, interests string) (store.User, error) {
	if pending.ExternalID == "" {
		return store.User{}, identity.ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.User{}, fmt.Errorf("%w: name is required", identity.ErrInvalidInput)
	}

	placeholder := identity.PlaceholderEmail(pending.ExternalID)

	u, err := s.users.Reconcile(ctx, pending.ExternalID, pending.Email, placeholder)
	switch {
	case err == nil:
		u, err = s.users.CompleteOnboarding(ctx, u.ID, name, skills, interests)
		if err != nil {
			return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
		}

	case errors.Is(err, store.ErrNotFound):
		email := pending.Email
		if email == "" {
			email = placeholder
		}
		u, err = s.users.Create(ctx, store.NewUser{
			DiscordID: pending.ExternalID,
			Email:     email,
			Name:      name,
			AvatarURL: pending.AvatarURL,
			Skills:    skills,
			Interests: interests,
			Onboarded: true,
		})
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent registration for the same external identity won
			// the insert; treat the conflict as "match found" and retry as
			// an update.
			u, err = s.users.Reconcile(ctx, pending.ExternalID, pending.Email, placeholder)
			if err == nil {
				u, err = s.users.CompleteOnboarding(ctx, u.ID, name, skills, interests)
			}
		}
		if err != nil {
			return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
		}

	default:
		return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}

	if s.notifier != nil {
		s.notifier.UserJoined(context.WithoutCancel(ctx), u.Name)
	}
	s.logger.Info("user registered",
		slog.String("user_id", u.ID), slog.String("role", u.Role))
	return u, nil
}

// UpdateProfile applies self-service profile changes.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (store.User, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return store.User{}, fmt.Errorf("%w: name is required", identity.ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	u, err := s.users.UpdateProfile(ctx, id, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, identity.ErrNotFound
		}
		return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return u, nil
}

// ChangeRole sets a user's global role. Authorization (caller is Admin) is
// the handler's concern.
func (s *Service) ChangeRole(ctx context.Context, id, role string) (store.User, error) {
	switch role {
	case store.RoleAdmin, store.RoleTeamLead, store.RoleMember:
	default:
		return store.User{}, fmt.Errorf("%w: invalid role %q", identity.ErrInvalidInput, role)
	}
	u, err := s.users.UpdateRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, identity.ErrNotFound
		}
		return store.User{}, fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}
	return u, nil
}

// DeleteAccount irreversibly removes a user while preserving authored content
// under the anonymized label. The rewrites are keyed by the stored name
// snapshot, not a live join, and must precede the delete or attribution is
// lost. Every step is individually idempotent, so a retried call is safe.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.ErrUnauthenticated
		}
		return fmt.Errorf("%w: %v", identity.ErrPersistence, err)
	}

	if _, err := s.activity.RenameActor(ctx, u.Name, DeletedUserName); err != nil {
		return fmt.Errorf("%w: anonymize activity: %v", identity.ErrPersistence, err)
	}
	if _, err := s.projects.RenameCommentAuthor(ctx, u.Name, DeletedUserName); err != nil {
		return fmt.Errorf("%w: anonymize comments: %v", identity.ErrPersistence, err)
	}
	if _, err := s.chat.RenameAuthor(ctx, u.Name, DeletedUserName); err != nil {
		return fmt.Errorf("%w: anonymize chat: %v", identity.ErrPersistence, err)
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return fmt.Errorf("%w: delete user: %v", identity.ErrPersistence, err)
	}

	s.logger.Info("account deleted", slog.String("user_id", u.ID))
	return nil
}
