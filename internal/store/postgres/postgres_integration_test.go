package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/crewdeck/crewdeck/db"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/store/postgres"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func setupIntegrationTest(t *testing.T) (store.Store, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}

	sub, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		t.Fatalf("migration fs: %v", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		t.Fatalf("migration source: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		t.Fatalf("migrate init: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("migrate up: %v", err)
	}
	m.Close()

	return postgres.New(pool), func() { pool.Close() }
}

func uniqueDiscordID() string {
	return uuid.NewString()[:18]
}

func TestIntegrationUserLifecycle(t *testing.T) {
	st, cleanup := setupIntegrationTest(t)
	defer cleanup()
	ctx := context.Background()

	did := uniqueDiscordID()
	email := fmt.Sprintf("%s@example.com", did)

	u, err := st.Users().Create(ctx, store.NewUser{
		DiscordID: did,
		Email:     email,
		Name:      "Integration",
		Onboarded: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = st.Users().Delete(ctx, u.ID) }()

	if u.Role != store.RoleAdmin && u.Role != store.RoleMember {
		t.Fatalf("unexpected role %q", u.Role)
	}

	got, err := st.Users().Reconcile(ctx, did, "", "external_"+did+"@external.user")
	if err != nil {
		t.Fatalf("reconcile by discord id: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, got.ID)
	}

	_, err = st.Users().Create(ctx, store.NewUser{DiscordID: did, Email: "other-" + email, Name: "Dup"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := st.Users().Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Users().Get(ctx, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestIntegrationInviteFlow(t *testing.T) {
	st, cleanup := setupIntegrationTest(t)
	defer cleanup()
	ctx := context.Background()

	owner, err := st.Users().Create(ctx, store.NewUser{
		DiscordID: uniqueDiscordID(),
		Email:     uuid.NewString() + "@example.com",
		Name:      "Owner",
		Onboarded: true,
	})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	defer func() { _ = st.Users().Delete(ctx, owner.ID) }()

	ws, err := st.Workspaces().Create(ctx, "it-"+uuid.NewString()[:8], owner.ID, "")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	defer func() { _ = st.Workspaces().Delete(ctx, ws.ID) }()

	token := uuid.NewString()[:8]
	inv, err := st.Invites().Create(ctx, ws.ID, token, owner.ID, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	got, err := st.Invites().GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got.ID != inv.ID {
		t.Fatalf("expected invite %s, got %s", inv.ID, got.ID)
	}

	used, err := st.Invites().MarkUsed(ctx, inv.ID, owner.ID)
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if used.UsedAt.IsZero() {
		t.Fatalf("expected used_at set")
	}
}
