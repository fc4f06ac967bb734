// Package memstore is an in-memory record store implementation. It backs the
// unit tests and the dev server when no database is configured; the Postgres
// implementation is authoritative for production.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/store"
)

// Store is a mutex-guarded in-memory record store.
type Store struct {
	mu sync.Mutex

	users       map[string]*store.User
	workspaces  map[string]*store.Workspace
	memberships map[string]*store.Membership
	invites     map[string]*store.Invite
	projects    map[string]*store.Project
	tasks       map[string]*store.Task
	comments    map[string]*store.Comment
	messages    map[string]*store.ChatMessage
	activity    map[string]*store.ActivityEntry
	flags       map[string]bool

	seq int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:       map[string]*store.User{},
		workspaces:  map[string]*store.Workspace{},
		memberships: map[string]*store.Membership{},
		invites:     map[string]*store.Invite{},
		projects:    map[string]*store.Project{},
		tasks:       map[string]*store.Task{},
		comments:    map[string]*store.Comment{},
		messages:    map[string]*store.ChatMessage{},
		activity:    map[string]*store.ActivityEntry{},
		flags:       map[string]bool{},
	}
}

func (s *Store) Users() store.Users           { return (*userStore)(s) }
func (s *Store) Workspaces() store.Workspaces { return (*workspaceStore)(s) }
func (s *Store) Invites() store.Invites       { return (*inviteStore)(s) }
func (s *Store) Projects() store.Projects     { return (*projectStore)(s) }
func (s *Store) Chat() store.Chat             { return (*chatStore)(s) }
func (s *Store) Activity() store.Activity     { return (*activityStore)(s) }

var _ store.Store = (*Store)(nil)

func (s *Store) newID() string {
	return uuid.NewString()
}

// tick returns a strictly increasing timestamp so ordering by creation time is
// deterministic even within a single wall-clock tick.
func (s *Store) tick() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq) * time.Microsecond)
}

type userStore Store

func (s *userStore) Get(_ context.Context, id string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return *u, nil
}

func (s *userStore) List(_ context.Context) ([]store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]store.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *userStore) Resolved(_ context.Context, id string) (store.ResolvedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ResolvedUser{}, store.ErrNotFound
	}
	resolved := store.ResolvedUser{User: *u}
	if u.WorkspaceID != "" {
		if ws, ok := s.workspaces[u.WorkspaceID]; ok {
			resolved.WorkspaceName = ws.Name
		}
	}
	for _, m := range s.memberships {
		if m.UserID != id {
			continue
		}
		d := store.MembershipDetail{Membership: *m}
		if ws, ok := s.workspaces[m.WorkspaceID]; ok {
			d.WorkspaceName = ws.Name
		}
		for _, other := range s.memberships {
			if other.WorkspaceID == m.WorkspaceID {
				d.MemberCount++
			}
		}
		for _, p := range s.projects {
			if p.WorkspaceID == m.WorkspaceID {
				d.ProjectCount++
			}
		}
		resolved.Memberships = append(resolved.Memberships, d)
	}
	sort.Slice(resolved.Memberships, func(i, j int) bool {
		return resolved.Memberships[i].CreatedAt.Before(resolved.Memberships[j].CreatedAt)
	})
	return resolved, nil
}

func (s *userStore) Reconcile(_ context.Context, discordID, email, placeholderEmail string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Discord id match takes precedence over either email form.
	for _, u := range s.users {
		if discordID != "" && u.DiscordID == discordID {
			return *u, nil
		}
	}
	for _, u := range s.users {
		if (email != "" && u.Email == email) || u.Email == placeholderEmail {
			return *u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (s *userStore) Create(_ context.Context, nu store.NewUser) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if (nu.DiscordID != "" && u.DiscordID == nu.DiscordID) || u.Email == nu.Email {
			return store.User{}, store.ErrDuplicate
		}
	}
	role := store.RoleMember
	if !s.flags[store.BootstrapFlag] {
		s.flags[store.BootstrapFlag] = true
		role = store.RoleAdmin
	}
	now := (*Store)(s).tick()
	u := &store.User{
		ID:        (*Store)(s).newID(),
		DiscordID: nu.DiscordID,
		Email:     nu.Email,
		Name:      nu.Name,
		AvatarURL: nu.AvatarURL,
		Role:      role,
		Onboarded: nu.Onboarded,
		Skills:    nu.Skills,
		Interests: nu.Interests,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	return *u, nil
}

func (s *userStore) CompleteOnboarding(_ context.Context, id, name, skills, interests string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	u.Name = name
	u.Skills = skills
	u.Interests = interests
	u.Onboarded = true
	u.UpdatedAt = (*Store)(s).tick()
	return *u, nil
}

func (s *userStore) UpdateProfile(_ context.Context, id string, upd store.ProfileUpdate) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.Skills != nil {
		u.Skills = *upd.Skills
	}
	if upd.Interests != nil {
		u.Interests = *upd.Interests
	}
	u.UpdatedAt = (*Store)(s).tick()
	return *u, nil
}

func (s *userStore) UpdateRole(_ context.Context, id, role string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = (*Store)(s).tick()
	return *u, nil
}

func (s *userStore) SetPrimaryWorkspace(_ context.Context, id, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.WorkspaceID = workspaceID
	u.UpdatedAt = (*Store)(s).tick()
	return nil
}

func (s *userStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	for mID, m := range s.memberships {
		if m.UserID == id {
			delete(s.memberships, mID)
		}
	}
	// FK null-out behavior of the schema.
	for _, ws := range s.workspaces {
		if ws.OwnerUserID == id {
			ws.OwnerUserID = ""
		}
	}
	for _, p := range s.projects {
		if p.LeadUserID == id {
			p.LeadUserID = ""
		}
	}
	return nil
}

type workspaceStore Store

func (s *workspaceStore) Create(_ context.Context, name, ownerUserID, channelID string) (store.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &store.Workspace{
		ID:          (*Store)(s).newID(),
		Name:        name,
		OwnerUserID: ownerUserID,
		ChannelID:   channelID,
		CreatedAt:   (*Store)(s).tick(),
	}
	s.workspaces[w.ID] = w
	return *w, nil
}

func (s *workspaceStore) Get(_ context.Context, id string) (store.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok {
		return store.Workspace{}, store.ErrNotFound
	}
	return *w, nil
}

func (s *workspaceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.workspaces, id)
	for mID, m := range s.memberships {
		if m.WorkspaceID == id {
			delete(s.memberships, mID)
		}
	}
	for _, u := range s.users {
		if u.WorkspaceID == id {
			u.WorkspaceID = ""
		}
	}
	for pID, p := range s.projects {
		if p.WorkspaceID == id {
			delete(s.projects, pID)
		}
	}
	return nil
}

func (s *workspaceStore) AddMembership(_ context.Context, userID, workspaceID, role string) (store.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.UserID == userID && m.WorkspaceID == workspaceID {
			return store.Membership{}, store.ErrDuplicate
		}
	}
	m := &store.Membership{
		ID:          (*Store)(s).newID(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
		CreatedAt:   (*Store)(s).tick(),
	}
	s.memberships[m.ID] = m
	return *m, nil
}

func (s *workspaceStore) MembershipFor(_ context.Context, userID, workspaceID string) (store.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.UserID == userID && m.WorkspaceID == workspaceID {
			return *m, nil
		}
	}
	return store.Membership{}, store.ErrNotFound
}

func (s *workspaceStore) ListMembers(_ context.Context, workspaceID string) ([]store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []store.User
	for _, m := range s.memberships {
		if m.WorkspaceID != workspaceID {
			continue
		}
		if u, ok := s.users[m.UserID]; ok {
			members = append(members, *u)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

type inviteStore Store

func (s *inviteStore) Create(_ context.Context, workspaceID, token, issuedByUserID string, expiresAt time.Time) (store.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.Token == token {
			return store.Invite{}, store.ErrDuplicate
		}
	}
	inv := &store.Invite{
		ID:             (*Store)(s).newID(),
		WorkspaceID:    workspaceID,
		Token:          token,
		IssuedByUserID: issuedByUserID,
		ExpiresAt:      expiresAt,
		CreatedAt:      (*Store)(s).tick(),
	}
	s.invites[inv.ID] = inv
	return *inv, nil
}

func (s *inviteStore) GetByToken(_ context.Context, token string) (store.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.Token == token {
			return *inv, nil
		}
	}
	return store.Invite{}, store.ErrNotFound
}

func (s *inviteStore) MarkUsed(_ context.Context, id, usedByUserID string) (store.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return store.Invite{}, store.ErrNotFound
	}
	inv.UsedAt = (*Store)(s).tick()
	inv.UsedByUserID = usedByUserID
	return *inv, nil
}

func (s *inviteStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for id, inv := range s.invites {
		if inv.ExpiresAt.Before(now) {
			delete(s.invites, id)
			purged++
		}
	}
	return purged, nil
}

type projectStore Store

func (s *projectStore) Create(_ context.Context, workspaceID, name, description string) (store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := (*Store)(s).tick()
	p := &store.Project{
		ID:          (*Store)(s).newID(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects[p.ID] = p
	return *p, nil
}

func (s *projectStore) Get(_ context.Context, id string) (store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	return *p, nil
}

func (s *projectStore) ListByWorkspace(_ context.Context, workspaceID string) ([]store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var projects []store.Project
	for _, p := range s.projects {
		if p.WorkspaceID == workspaceID {
			projects = append(projects, *p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.Before(projects[j].CreatedAt) })
	return projects, nil
}

func (s *projectStore) SetLead(_ context.Context, projectID, leadUserID string) (store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	p.LeadUserID = leadUserID
	p.UpdatedAt = (*Store)(s).tick()
	return *p, nil
}

func (s *projectStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.projects, id)
	for tID, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tID)
		}
	}
	return nil
}

func (s *projectStore) CreateTask(_ context.Context, projectID, title, description, assigneeUserID string) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return store.Task{}, store.ErrNotFound
	}
	now := (*Store)(s).tick()
	t := &store.Task{
		ID:             (*Store)(s).newID(),
		ProjectID:      projectID,
		Title:          title,
		Description:    description,
		Status:         store.TaskTodo,
		AssigneeUserID: assigneeUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.tasks[t.ID] = t
	return *t, nil
}

func (s *projectStore) ListTasks(_ context.Context, projectID string) ([]store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tasks []store.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			tasks = append(tasks, *t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

func (s *projectStore) UpdateTaskStatus(_ context.Context, taskID, status string) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = (*Store)(s).tick()
	return *t, nil
}

func (s *projectStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return store.ErrNotFound
	}
	delete(s.tasks, taskID)
	for cID, c := range s.comments {
		if c.TaskID == taskID {
			delete(s.comments, cID)
		}
	}
	return nil
}

func (s *projectStore) CreateComment(_ context.Context, taskID, authorUserID, authorName, body string) (store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &store.Comment{
		ID:           (*Store)(s).newID(),
		TaskID:       taskID,
		AuthorUserID: authorUserID,
		AuthorName:   authorName,
		Body:         body,
		CreatedAt:    (*Store)(s).tick(),
	}
	s.comments[c.ID] = c
	return *c, nil
}

func (s *projectStore) ListComments(_ context.Context, taskID string) ([]store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var comments []store.Comment
	for _, c := range s.comments {
		if c.TaskID == taskID {
			comments = append(comments, *c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

func (s *projectStore) RenameCommentAuthor(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var touched int64
	for _, c := range s.comments {
		if c.AuthorName == from {
			c.AuthorName = to
			touched++
		}
	}
	return touched, nil
}

type chatStore Store

func (s *chatStore) Append(_ context.Context, workspaceID, authorUserID, authorName, body string) (store.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &store.ChatMessage{
		ID:           (*Store)(s).newID(),
		WorkspaceID:  workspaceID,
		AuthorUserID: authorUserID,
		AuthorName:   authorName,
		Body:         body,
		CreatedAt:    (*Store)(s).tick(),
	}
	s.messages[m.ID] = m
	return *m, nil
}

func (s *chatStore) List(_ context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var messages []store.ChatMessage
	for _, m := range s.messages {
		if m.WorkspaceID == workspaceID {
			messages = append(messages, *m)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (s *chatStore) RenameAuthor(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var touched int64
	for _, m := range s.messages {
		if m.AuthorName == from {
			m.AuthorName = to
			touched++
		}
	}
	return touched, nil
}

type activityStore Store

func (s *activityStore) Append(_ context.Context, workspaceID, actorUserID, actorName, action, target string) (store.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &store.ActivityEntry{
		ID:          (*Store)(s).newID(),
		WorkspaceID: workspaceID,
		ActorUserID: actorUserID,
		ActorName:   actorName,
		Action:      action,
		Target:      target,
		CreatedAt:   (*Store)(s).tick(),
	}
	s.activity[e.ID] = e
	return *e, nil
}

func (s *activityStore) List(_ context.Context, workspaceID string, limit int) ([]store.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var entries []store.ActivityEntry
	for _, e := range s.activity {
		if e.WorkspaceID == workspaceID {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *activityStore) RenameActor(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var touched int64
	for _, e := range s.activity {
		if e.ActorName == from {
			e.ActorName = to
			touched++
		}
	}
	return touched, nil
}
