package identity_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/store/memstore"
)

func newSessions() *session.Manager {
	return session.NewManager("test-secret", 0, 0, false)
}

// contextWithCookies signs cookies with set and replays them on a fresh
// request.
func contextWithCookies(t *testing.T, set func(c echo.Context)) echo.Context {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	setCtx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	set(setCtx)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestResolveAnonymousWithoutCookies(t *testing.T) {
	st := memstore.New()
	r := identity.NewResolver(nil, st.Users(), newSessions())

	c := contextWithCookies(t, func(echo.Context) {})
	ci := r.Resolve(c)
	if !ci.Anonymous() {
		t.Fatalf("expected anonymous, got %s", ci.State)
	}
	if ci.ID != "" {
		t.Fatalf("expected empty id, got %q", ci.ID)
	}
}

func TestResolveRegistered(t *testing.T) {
	st := memstore.New()
	sessions := newSessions()
	u, err := st.Users().Create(context.Background(), store.NewUser{
		DiscordID: "42",
		Email:     "ada@example.com",
		Name:      "Ada",
		Onboarded: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	r := identity.NewResolver(nil, st.Users(), sessions)
	c := contextWithCookies(t, func(c echo.Context) {
		if err := sessions.SetUser(c, u.ID); err != nil {
			t.Fatalf("SetUser failed: %v", err)
		}
	})

	ci := r.Resolve(c)
	if !ci.Registered() {
		t.Fatalf("expected registered, got %s", ci.State)
	}
	if ci.ID != u.ID || ci.Name != "Ada" || ci.Role != store.RoleAdmin {
		t.Fatalf("unexpected identity: %+v", ci)
	}
}

func TestResolvePendingOnly(t *testing.T) {
	st := memstore.New()
	sessions := newSessions()
	r := identity.NewResolver(nil, st.Users(), sessions)

	c := contextWithCookies(t, func(c echo.Context) {
		err := sessions.SetPending(c, session.PendingIdentity{
			ExternalID: "42",
			Username:   "gamer",
		})
		if err != nil {
			t.Fatalf("SetPending failed: %v", err)
		}
	})

	ci := r.Resolve(c)
	if ci.State != identity.StatePending {
		t.Fatalf("expected pending, got %s", ci.State)
	}
	if ci.ID != identity.PendingID {
		t.Fatalf("expected id %q, got %q", identity.PendingID, ci.ID)
	}
	if ci.Name != "gamer" {
		t.Fatalf("expected username fallback, got %q", ci.Name)
	}
	if ci.Role != store.RoleMember {
		t.Fatalf("expected provisional member role, got %q", ci.Role)
	}
	if ci.Email != "external_42@external.user" {
		t.Fatalf("unexpected placeholder email %q", ci.Email)
	}
}

func TestResolveStaleUserFallsThroughToPending(t *testing.T) {
	st := memstore.New()
	sessions := newSessions()
	r := identity.NewResolver(nil, st.Users(), sessions)

	c := contextWithCookies(t, func(c echo.Context) {
		if err := sessions.SetUser(c, "gone-user-id"); err != nil {
			t.Fatalf("SetUser failed: %v", err)
		}
		err := sessions.SetPending(c, session.PendingIdentity{ExternalID: "42", Username: "gamer"})
		if err != nil {
			t.Fatalf("SetPending failed: %v", err)
		}
	})

	ci := r.Resolve(c)
	if ci.State != identity.StatePending {
		t.Fatalf("expected stale uid to fall through to pending, got %s", ci.State)
	}
}

type failingUsers struct {
	store.Users
}

func (failingUsers) Resolved(context.Context, string) (store.ResolvedUser, error) {
	return store.ResolvedUser{}, errors.New("connection refused")
}

func TestResolveStorageFailureDegradesToAnonymous(t *testing.T) {
	sessions := newSessions()
	r := identity.NewResolver(nil, failingUsers{}, sessions)

	c := contextWithCookies(t, func(c echo.Context) {
		if err := sessions.SetUser(c, "user-123"); err != nil {
			t.Fatalf("SetUser failed: %v", err)
		}
		err := sessions.SetPending(c, session.PendingIdentity{ExternalID: "42", Username: "gamer"})
		if err != nil {
			t.Fatalf("SetPending failed: %v", err)
		}
	})

	ci := r.Resolve(c)
	if !ci.Anonymous() {
		t.Fatalf("expected storage failure to degrade to anonymous, got %s", ci.State)
	}
}

func TestMiddlewareStoresIdentity(t *testing.T) {
	st := memstore.New()
	sessions := newSessions()
	r := identity.NewResolver(nil, st.Users(), sessions)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var got identity.CurrentIdentity
	h := r.Middleware()(func(c echo.Context) error {
		got = identity.From(c)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware failed: %v", err)
	}
	if !got.Anonymous() {
		t.Fatalf("expected anonymous identity in context, got %s", got.State)
	}
}
