package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/config"
	"github.com/crewdeck/crewdeck/internal/discord"
	"github.com/crewdeck/crewdeck/internal/handlers"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/store/memstore"
	"github.com/crewdeck/crewdeck/internal/users"
)

// fakeProvider stands in for the OAuth provider: a token endpoint and a
// profile endpoint serving a fixed profile.
func fakeProvider(t *testing.T, profile discord.Profile) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type authFixture struct {
	handler  *handlers.AuthHandler
	sessions *session.Manager
	store    *memstore.Store
	users    *users.Service
}

func newAuthFixture(t *testing.T, profile discord.Profile) *authFixture {
	t.Helper()
	provider := fakeProvider(t, profile)
	oauth := discord.NewClient(config.DiscordConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		AuthURL:      provider.URL + "/oauth2/authorize",
		TokenURL:     provider.URL + "/oauth2/token",
		APIBaseURL:   provider.URL,
	})
	st := memstore.New()
	sessions := session.NewManager("test-secret", 0, 0, false)
	userService := users.NewService(nil, st, nil)
	h := handlers.NewAuthHandler(nil, oauth, userService, sessions, metrics.New())
	return &authFixture{handler: h, sessions: sessions, store: st, users: userService}
}

// runLogin performs GET /auth/login and returns the provider state and the
// cookies the response set.
func runLogin(t *testing.T, f *authFixture, query string) (string, []*http.Cookie) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/login"+query, nil)
	rec := httptest.NewRecorder()
	if err := f.handler.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 from login, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state parameter in provider redirect")
	}
	return state, rec.Result().Cookies()
}

func runCallback(t *testing.T, f *authFixture, state string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=authcode&state="+url.QueryEscape(state), nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	if err := f.handler.Callback(e.NewContext(req, rec)); err != nil {
		t.Fatalf("callback: %v", err)
	}
	return rec
}

func TestCallbackNewUserRedirectsToOnboarding(t *testing.T) {
	f := newAuthFixture(t, discord.Profile{ID: "42", Username: "gamer", Email: "gamer@example.com"})

	state, cookies := runLogin(t, f, "")
	rec := runCallback(t, f, state, cookies)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/onboarding" {
		t.Fatalf("expected redirect to /onboarding, got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	// the pending cookie must round-trip
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())
	pending, ok := f.sessions.Pending(c)
	if !ok || pending.ExternalID != "42" {
		t.Fatalf("expected pending cookie for external id 42, got %+v ok=%v", pending, ok)
	}

	// the durable record exists already, but is not onboarded
	u, err := f.users.FindByExternal(c.Request().Context(), pending)
	if err != nil {
		t.Fatalf("expected eagerly created record: %v", err)
	}
	if u.Onboarded {
		t.Fatalf("expected record to await onboarding")
	}
}

func TestCallbackReturningUserSkipsOnboarding(t *testing.T) {
	f := newAuthFixture(t, discord.Profile{ID: "42", Username: "gamer", Email: "gamer@example.com"})

	existing, err := f.store.Users().Create(context.Background(), store.NewUser{
		DiscordID: "42",
		Email:     "gamer@example.com",
		Name:      "Gamer",
		Onboarded: true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	state, cookies := runLogin(t, f, "")
	rec := runCallback(t, f, state, cookies)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())
	uid, ok := f.sessions.UserID(c)
	if !ok || uid != existing.ID {
		t.Fatalf("expected signed session for %s, got %q ok=%v", existing.ID, uid, ok)
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	f := newAuthFixture(t, discord.Profile{ID: "42", Username: "gamer"})

	_, cookies := runLogin(t, f, "")
	rec := runCallback(t, f, "forged-state", cookies)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login?error=oauth" {
		t.Fatalf("expected redirect to /login?error=oauth, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestCallbackWithoutStateCookie(t *testing.T) {
	f := newAuthFixture(t, discord.Profile{ID: "42", Username: "gamer"})

	rec := runCallback(t, f, "any-state", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login?error=oauth" {
		t.Fatalf("expected redirect to /login?error=oauth, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestLoginCapturesFlowIntent(t *testing.T) {
	f := newAuthFixture(t, discord.Profile{ID: "42", Username: "gamer"})

	_, cookies := runLogin(t, f, "?mode=join&value=tok12345&name=Ada")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())
	flow := f.sessions.Flow(c)
	if flow.Mode != "join" || flow.Value != "tok12345" || flow.Name != "Ada" {
		t.Fatalf("unexpected flow state: %+v", flow)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	f := newAuthFixture(t, discord.Profile{ID: "42"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	if err := f.handler.Logout(e.NewContext(req, rec)); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge >= 0 {
			t.Fatalf("expected cookie %s to be expired", cookie.Name)
		}
	}
}
