// Package identity answers "who is making this request". It resolves the
// session state into one of three caller states: anonymous, pending
// onboarding, or registered.
package identity

import (
	"errors"
	"fmt"

	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
)

// Error taxonomy shared by the identity transitions. A NotFound of the
// current user is reported as ErrUnauthenticated.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidInput    = errors.New("invalid input")
	ErrPersistence     = errors.New("persistence failure")
	ErrNotFound        = errors.New("not found")
)

// State discriminates the three caller states.
type State int

const (
	StateAnonymous State = iota
	StatePending
	StateRegistered
)

// PendingID is the synthetic id carried by a pending identity.
const PendingID = "pending"

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRegistered:
		return "registered"
	default:
		return "anonymous"
	}
}

// CurrentIdentity is the resolved view consumed by every handler. It is
// recomputed on each request and never cached across requests.
type CurrentIdentity struct {
	State State `json:"state"`

	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`

	WorkspaceID   string                   `json:"workspace_id,omitempty"`
	WorkspaceName string                   `json:"workspace_name,omitempty"`
	Memberships   []store.MembershipDetail `json:"memberships,omitempty"`

	// Pending is set only in StatePending.
	Pending *session.PendingIdentity `json:"pending,omitempty"`
}

// Registered reports whether the caller resolved to a durable user record.
func (ci CurrentIdentity) Registered() bool { return ci.State == StateRegistered }

// Anonymous reports whether no identity resolved at all.
func (ci CurrentIdentity) Anonymous() bool { return ci.State == StateAnonymous }

// IsAdmin reports whether the caller holds the global Admin role. Admin is a
// flat capability, compared by exact string; there is no role hierarchy.
func (ci CurrentIdentity) IsAdmin() bool {
	return ci.State == StateRegistered && ci.Role == store.RoleAdmin
}

// PlaceholderEmail derives the deterministic email used when the external
// profile carries none.
func PlaceholderEmail(externalID string) string {
	return fmt.Sprintf("external_%s@external.user", externalID)
}

// FromRegistered projects a resolved user record into a registered identity.
func FromRegistered(u store.ResolvedUser) CurrentIdentity {
	return CurrentIdentity{
		State:         StateRegistered,
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		AvatarURL:     u.AvatarURL,
		Role:          u.Role,
		WorkspaceID:   u.WorkspaceID,
		WorkspaceName: u.WorkspaceName,
		Memberships:   u.Memberships,
	}
}

// FromPending synthesizes the identity of an externally-authenticated caller
// that has not completed onboarding.
func FromPending(p session.PendingIdentity) CurrentIdentity {
	name := p.DisplayName
	if name == "" {
		name = p.Username
	}
	return CurrentIdentity{
		State:     StatePending,
		ID:        PendingID,
		Name:      name,
		Email:     PlaceholderEmail(p.ExternalID),
		AvatarURL: p.AvatarURL,
		Role:      store.RoleMember,
		Pending:   &p,
	}
}
