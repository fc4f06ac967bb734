package users_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/store/memstore"
	"github.com/crewdeck/crewdeck/internal/users"
)

type recordingNotifier struct {
	mu    sync.Mutex
	names []string
}

func (n *recordingNotifier) UserJoined(_ context.Context, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names = append(n.names, name)
}

func newService(t *testing.T) (*users.Service, *memstore.Store, *recordingNotifier) {
	t.Helper()
	st := memstore.New()
	notifier := &recordingNotifier{}
	return users.NewService(nil, st, notifier), st, notifier
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	svc, _, notifier := newService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada", "go", "infra")
	if err != nil {
		t.Fatalf("register first: %v", err)
	}
	if first.Role != store.RoleAdmin {
		t.Fatalf("expected first user to be %s, got %s", store.RoleAdmin, first.Role)
	}
	if !first.Onboarded {
		t.Fatalf("expected first user to be onboarded")
	}

	second, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "43"}, "Bob", "", "")
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if second.Role != store.RoleMember {
		t.Fatalf("expected second user to be %s, got %s", store.RoleMember, second.Role)
	}

	if len(notifier.names) != 2 {
		t.Fatalf("expected 2 join notifications, got %d", len(notifier.names))
	}
}

func TestRegisterWithoutEmailUsesPlaceholder(t *testing.T) {
	svc, _, _ := newService(t)

	u, err := svc.Register(context.Background(), session.PendingIdentity{ExternalID: "42"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "external_42@external.user" {
		t.Fatalf("expected placeholder email, got %q", u.Email)
	}
}

func TestRegisterIsIdempotentPerExternalIdentity(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	again, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada Lovelace", "math", "")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected retry to update the same record, got new id %s", again.ID)
	}
	if again.Name != "Ada Lovelace" {
		t.Fatalf("expected name update, got %q", again.Name)
	}
	if again.Role != first.Role {
		t.Fatalf("expected role preserved, got %s", again.Role)
	}

	all, err := st.Users().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one user, got %d", len(all))
	}
}

func TestRegisterCompletesEagerlyCreatedRecord(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	pending := session.PendingIdentity{ExternalID: "42", Username: "gamer"}
	eager, err := svc.EagerCreate(ctx, pending)
	if err != nil {
		t.Fatalf("eager create: %v", err)
	}
	if eager.Onboarded {
		t.Fatalf("expected eagerly created record to not be onboarded")
	}

	u, err := svc.Register(ctx, pending, "Ada", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID != eager.ID {
		t.Fatalf("expected registration to complete the eager record, got new id %s", u.ID)
	}
	if !u.Onboarded {
		t.Fatalf("expected registration to mark the record onboarded")
	}
	if u.Role != eager.Role {
		t.Fatalf("expected role preserved, got %s", u.Role)
	}
}

// racingStore simulates a concurrent registration winning the insert: the
// first Reconcile misses, Create lands the rival's row and reports the
// conflict, and only later Reconciles see the record.
type racingStore struct {
	store.Store
	users *racingUsers
}

func (s *racingStore) Users() store.Users { return s.users }

type racingUsers struct {
	store.Users
	inserted bool
}

func (u *racingUsers) Reconcile(ctx context.Context, discordID, email, placeholder string) (store.User, error) {
	if !u.inserted {
		return store.User{}, store.ErrNotFound
	}
	return u.Users.Reconcile(ctx, discordID, email, placeholder)
}

func (u *racingUsers) Create(ctx context.Context, nu store.NewUser) (store.User, error) {
	if _, err := u.Users.Create(ctx, nu); err != nil {
		return store.User{}, err
	}
	u.inserted = true
	return store.User{}, store.ErrDuplicate
}

func TestRegisterRetriesAsUpdateOnInsertConflict(t *testing.T) {
	st := memstore.New()
	racing := &racingStore{Store: st, users: &racingUsers{Users: st.Users()}}
	svc := users.NewService(nil, racing, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada", "go", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !u.Onboarded {
		t.Fatalf("expected conflict retry to mark the record onboarded")
	}
	if u.Name != "Ada" {
		t.Fatalf("expected retry to apply the caller's name, got %q", u.Name)
	}

	all, err := st.Users().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one user after the conflict, got %d", len(all))
	}
	if all[0].ID != u.ID {
		t.Fatalf("expected retry to resolve to the stored record, got %s vs %s", u.ID, all[0].ID)
	}
}

func TestRegisterRejectsBlankName(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Register(context.Background(), session.PendingIdentity{ExternalID: "42"}, "   ", "", "")
	if !errors.Is(err, identity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegisterRequiresExternalIdentity(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Register(context.Background(), session.PendingIdentity{}, "Ada", "", "")
	if !errors.Is(err, identity.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestEagerCreateReturnsExistingOnConflict(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	pending := session.PendingIdentity{ExternalID: "42", Username: "gamer"}
	first, err := svc.EagerCreate(ctx, pending)
	if err != nil {
		t.Fatalf("first eager create: %v", err)
	}
	second, err := svc.EagerCreate(ctx, pending)
	if err != nil {
		t.Fatalf("second eager create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing record, got new id %s", second.ID)
	}
}

func TestChangeRoleValidatesRole(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.ChangeRole(ctx, u.ID, "Overlord"); !errors.Is(err, identity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
	changed, err := svc.ChangeRole(ctx, u.ID, store.RoleTeamLead)
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if changed.Role != store.RoleTeamLead {
		t.Fatalf("expected %s, got %s", store.RoleTeamLead, changed.Role)
	}
}

func TestDeleteAccountAnonymizesAuthoredContent(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ws, err := st.Workspaces().Create(ctx, "Skunkworks", u.ID, "")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	p, err := st.Projects().Create(ctx, ws.ID, "Engine", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task, err := st.Projects().CreateTask(ctx, p.ID, "Build", "", u.ID)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := st.Projects().CreateComment(ctx, task.ID, u.ID, u.Name, "done soon"); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if _, err := st.Chat().Append(ctx, ws.ID, u.ID, u.Name, "hello"); err != nil {
		t.Fatalf("append chat: %v", err)
	}
	if _, err := st.Activity().Append(ctx, ws.ID, u.ID, u.Name, "created", "Engine"); err != nil {
		t.Fatalf("append activity: %v", err)
	}

	if err := svc.DeleteAccount(ctx, u.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := st.Users().Get(ctx, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	comments, err := st.Projects().ListComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 || comments[0].AuthorName != users.DeletedUserName {
		t.Fatalf("expected anonymized comment, got %+v", comments)
	}
	msgs, err := st.Chat().List(ctx, ws.ID, 0)
	if err != nil {
		t.Fatalf("list chat: %v", err)
	}
	if len(msgs) != 1 || msgs[0].AuthorName != users.DeletedUserName {
		t.Fatalf("expected anonymized chat message, got %+v", msgs)
	}
	entries, err := st.Activity().List(ctx, ws.ID, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	for _, entry := range entries {
		if entry.ActorUserID == u.ID && entry.ActorName != users.DeletedUserName {
			t.Fatalf("expected anonymized activity entry, got %+v", entry)
		}
	}
}

func TestDeleteAccountLeavesOtherAuthorsAlone(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	ada, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "42"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register ada: %v", err)
	}
	bob, err := svc.Register(ctx, session.PendingIdentity{ExternalID: "43"}, "Bob", "", "")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}
	ws, err := st.Workspaces().Create(ctx, "Skunkworks", bob.ID, "")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	if _, err := st.Chat().Append(ctx, ws.ID, ada.ID, ada.Name, "bye"); err != nil {
		t.Fatalf("append ada chat: %v", err)
	}
	if _, err := st.Chat().Append(ctx, ws.ID, bob.ID, bob.Name, "stay"); err != nil {
		t.Fatalf("append bob chat: %v", err)
	}

	if err := svc.DeleteAccount(ctx, ada.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	msgs, err := st.Chat().List(ctx, ws.ID, 0)
	if err != nil {
		t.Fatalf("list chat: %v", err)
	}
	byAuthor := map[string]int{}
	for _, m := range msgs {
		byAuthor[m.AuthorName]++
	}
	if byAuthor[users.DeletedUserName] != 1 || byAuthor["Bob"] != 1 {
		t.Fatalf("unexpected author distribution: %v", byAuthor)
	}
}

func TestDeleteAccountUnknownUser(t *testing.T) {
	svc, _, _ := newService(t)

	err := svc.DeleteAccount(context.Background(), "nope")
	if !errors.Is(err, identity.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
