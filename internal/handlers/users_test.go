package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/handlers"
	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/store/memstore"
	"github.com/crewdeck/crewdeck/internal/users"
)

type usersFixture struct {
	handler  *handlers.UsersHandler
	sessions *session.Manager
	store    *memstore.Store
	users    *users.Service
}

func newUsersFixture(t *testing.T) *usersFixture {
	t.Helper()
	st := memstore.New()
	sessions := session.NewManager("test-secret", 0, 0, false)
	userService := users.NewService(nil, st, nil)
	h := handlers.NewUsersHandler(nil, userService, sessions, metrics.New())
	return &usersFixture{handler: h, sessions: sessions, store: st, users: userService}
}

func registeredContext(t *testing.T, u store.User, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(identity.ContextKey, identity.FromRegistered(store.ResolvedUser{User: u}))
	return c, rec
}

func TestMeAnswersAnonymous(t *testing.T) {
	f := newUsersFixture(t)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/users/me", nil), rec)

	if err := f.handler.Me(c); err != nil {
		t.Fatalf("me: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for anonymous caller, got %d", rec.Code)
	}
	var ci identity.CurrentIdentity
	if err := json.Unmarshal(rec.Body.Bytes(), &ci); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ci.Anonymous() {
		t.Fatalf("expected anonymous identity, got %+v", ci)
	}
}

func TestListRequiresRegistration(t *testing.T) {
	f := newUsersFixture(t)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/users", nil), httptest.NewRecorder())
	err := f.handler.List(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestChangeRoleRequiresAdmin(t *testing.T) {
	f := newUsersFixture(t)
	ctx := context.Background()

	admin, err := f.users.Register(ctx, session.PendingIdentity{ExternalID: "1"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	member, err := f.users.Register(ctx, session.PendingIdentity{ExternalID: "2"}, "Bob", "", "")
	if err != nil {
		t.Fatalf("register member: %v", err)
	}

	c, _ := registeredContext(t, member, http.MethodPatch, "/api/users/"+admin.ID+"/role", `{"role":"TeamLead"}`)
	c.SetParamNames("id")
	c.SetParamValues(admin.ID)
	err = f.handler.ChangeRole(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin caller, got %v", err)
	}

	c2, rec2 := registeredContext(t, admin, http.MethodPatch, "/api/users/"+member.ID+"/role", `{"role":"TeamLead"}`)
	c2.SetParamNames("id")
	c2.SetParamValues(member.ID)
	if err := f.handler.ChangeRole(c2); err != nil {
		t.Fatalf("change role: %v", err)
	}
	var u store.User
	if err := json.Unmarshal(rec2.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Role != store.RoleTeamLead {
		t.Fatalf("expected TeamLead, got %s", u.Role)
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	f := newUsersFixture(t)

	u, err := f.users.Register(context.Background(), session.PendingIdentity{ExternalID: "1"}, "Ada", "go", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	c, rec := registeredContext(t, u, http.MethodPatch, "/api/users/me", `{"interests":"distributed systems"}`)
	if err := f.handler.UpdateProfile(c); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	var got store.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Interests != "distributed systems" {
		t.Fatalf("expected interests update, got %q", got.Interests)
	}
	if got.Name != "Ada" || got.Skills != "go" {
		t.Fatalf("expected untouched fields preserved, got %+v", got)
	}
}

func TestDeleteMeClearsCookiesOnSuccess(t *testing.T) {
	f := newUsersFixture(t)

	u, err := f.users.Register(context.Background(), session.PendingIdentity{ExternalID: "1"}, "Ada", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	c, rec := registeredContext(t, u, http.MethodDelete, "/api/users/me", "")
	if err := f.handler.DeleteMe(c); err != nil {
		t.Fatalf("delete me: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatalf("expected cookies to be expired")
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge >= 0 {
			t.Fatalf("expected cookie %s to be expired", cookie.Name)
		}
	}

	if _, err := f.store.Users().Get(context.Background(), u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
}

func TestDeleteMeKeepsCookiesOnFailure(t *testing.T) {
	f := newUsersFixture(t)

	// registered identity whose record no longer exists
	ghost := store.User{ID: "gone", Name: "Ghost", Role: store.RoleMember}
	c, rec := registeredContext(t, ghost, http.MethodDelete, "/api/users/me", "")

	err := f.handler.DeleteMe(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing record, got %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no cookie changes on failure")
	}
}
