// Package store defines the record store contract the rest of the application
// is written against: durable storage for users, workspaces, memberships, and
// the content tables whose author attribution is rewritten on account
// deletion. Implementations live in store/postgres (pgx) and store/memstore
// (in-memory, used by tests).
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Global user roles. Admin is a flat capability compared by exact string; it
// is distinct from the per-workspace membership role of the same name.
const (
	RoleAdmin    = "Admin"
	RoleTeamLead = "TeamLead"
	RoleMember   = "Member"
)

// Per-workspace membership roles.
const (
	MembershipAdmin  = "Admin"
	MembershipMember = "Member"
)

// Task statuses.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

// BootstrapFlag is the system_flags marker row claimed by the first committed
// user creation; the winner is assigned RoleAdmin.
const BootstrapFlag = "admin_bootstrap"

// User is a durable user record. WorkspaceID is the denormalized primary
// workspace; "" means none.
type User struct {
	ID          string    `json:"id"`
	DiscordID   string    `json:"discord_id,omitempty"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        string    `json:"role"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Onboarded   bool      `json:"onboarded"`
	Skills      string    `json:"skills,omitempty"`
	Interests   string    `json:"interests,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUser is the input for creating a user. The role is not an input: the
// store assigns RoleAdmin to the creation that claims the bootstrap flag and
// RoleMember to every other.
type NewUser struct {
	DiscordID string
	Email     string
	Name      string
	AvatarURL string
	Skills    string
	Interests string
	Onboarded bool
}

// ProfileUpdate carries optional self-service profile changes; nil fields are
// left untouched.
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
	Skills    *string
	Interests *string
}

// Workspace is a durable workspace record.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"owner_user_id,omitempty"`
	ChannelID   string    `json:"channel_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership is a secondary workspace membership. Its role is independent of
// the user's global role.
type Membership struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// MembershipDetail is a membership joined with its workspace name and the
// workspace's member and project counts.
type MembershipDetail struct {
	Membership
	WorkspaceName string `json:"workspace_name"`
	MemberCount   int    `json:"member_count"`
	ProjectCount  int    `json:"project_count"`
}

// ResolvedUser is a user eagerly joined with its primary workspace name and
// all memberships, as consumed by identity resolution.
type ResolvedUser struct {
	User
	WorkspaceName string             `json:"workspace_name,omitempty"`
	Memberships   []MembershipDetail `json:"memberships,omitempty"`
}

// Invite is a single-use, expiring workspace invite code.
type Invite struct {
	ID             string    `json:"id"`
	WorkspaceID    string    `json:"workspace_id"`
	Token          string    `json:"token"`
	IssuedByUserID string    `json:"issued_by_user_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	UsedAt         time.Time `json:"used_at,omitzero"`
	UsedByUserID   string    `json:"used_by_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Project is a durable project record.
type Project struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	LeadUserID  string    `json:"lead_user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task is a Kanban task within a project.
type Task struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	AssigneeUserID string    `json:"assignee_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Comment is a task comment. AuthorName is a snapshot taken at write time and
// is the key used by author anonymization.
type Comment struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	AuthorUserID string    `json:"author_user_id,omitempty"`
	AuthorName   string    `json:"author_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatMessage is a workspace chat message; AuthorName is a write-time snapshot.
type ChatMessage struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	AuthorUserID string    `json:"author_user_id,omitempty"`
	AuthorName   string    `json:"author_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityEntry is an activity-log line; ActorName is a write-time snapshot.
type ActivityEntry struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ActorUserID string    `json:"actor_user_id,omitempty"`
	ActorName   string    `json:"actor_name"`
	Action      string    `json:"action"`
	Target      string    `json:"target,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Users is the user table contract.
type Users interface {
	Get(ctx context.Context, id string) (User, error)
	List(ctx context.Context) ([]User, error)
	// Resolved returns the user joined with its primary workspace name and
	// memberships (including member/project counts per membership).
	Resolved(ctx context.Context, id string) (ResolvedUser, error)
	// Reconcile finds the user matching any of: discord id, the given email
	// (ignored when empty), or the placeholder email derived from the discord
	// id. Returns ErrNotFound when nothing matches.
	Reconcile(ctx context.Context, discordID, email, placeholderEmail string) (User, error)
	// Create inserts a user; the creation that claims the bootstrap flag gets
	// RoleAdmin, all others RoleMember. Returns ErrDuplicate on a unique
	// violation for discord id or email.
	Create(ctx context.Context, nu NewUser) (User, error)
	CompleteOnboarding(ctx context.Context, id, name, skills, interests string) (User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (User, error)
	UpdateRole(ctx context.Context, id, role string) (User, error)
	// SetPrimaryWorkspace sets the denormalized workspace id; "" clears it.
	SetPrimaryWorkspace(ctx context.Context, id, workspaceID string) error
	Delete(ctx context.Context, id string) error
}

// Workspaces is the workspace and membership table contract.
type Workspaces interface {
	Create(ctx context.Context, name, ownerUserID, channelID string) (Workspace, error)
	Get(ctx context.Context, id string) (Workspace, error)
	Delete(ctx context.Context, id string) error
	AddMembership(ctx context.Context, userID, workspaceID, role string) (Membership, error)
	// MembershipFor returns ErrNotFound when the user is not a member.
	MembershipFor(ctx context.Context, userID, workspaceID string) (Membership, error)
	ListMembers(ctx context.Context, workspaceID string) ([]User, error)
}

// Invites is the invite code table contract.
type Invites interface {
	Create(ctx context.Context, workspaceID, token, issuedByUserID string, expiresAt time.Time) (Invite, error)
	GetByToken(ctx context.Context, token string) (Invite, error)
	MarkUsed(ctx context.Context, id, usedByUserID string) (Invite, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Projects is the project, task, and comment table contract.
type Projects interface {
	Create(ctx context.Context, workspaceID, name, description string) (Project, error)
	Get(ctx context.Context, id string) (Project, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]Project, error)
	SetLead(ctx context.Context, projectID, leadUserID string) (Project, error)
	Delete(ctx context.Context, id string) error

	CreateTask(ctx context.Context, projectID, title, description, assigneeUserID string) (Task, error)
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) (Task, error)
	DeleteTask(ctx context.Context, taskID string) error

	CreateComment(ctx context.Context, taskID, authorUserID, authorName, body string) (Comment, error)
	ListComments(ctx context.Context, taskID string) ([]Comment, error)
	// RenameCommentAuthor rewrites author_name on every comment whose
	// author_name equals from; returns the number of rows touched.
	RenameCommentAuthor(ctx context.Context, from, to string) (int64, error)
}

// Chat is the chat message table contract.
type Chat interface {
	Append(ctx context.Context, workspaceID, authorUserID, authorName, body string) (ChatMessage, error)
	List(ctx context.Context, workspaceID string, limit int) ([]ChatMessage, error)
	RenameAuthor(ctx context.Context, from, to string) (int64, error)
}

// Activity is the activity log table contract.
type Activity interface {
	Append(ctx context.Context, workspaceID, actorUserID, actorName, action, target string) (ActivityEntry, error)
	List(ctx context.Context, workspaceID string, limit int) ([]ActivityEntry, error)
	RenameActor(ctx context.Context, from, to string) (int64, error)
}

// Store bundles all record store contracts.
type Store interface {
	Users() Users
	Workspaces() Workspaces
	Invites() Invites
	Projects() Projects
	Chat() Chat
	Activity() Activity
}
