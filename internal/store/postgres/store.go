// Package postgres implements the record store on PostgreSQL via pgx.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

// Store is the pgx-backed record store.
type Store struct {
	pool *pgxpool.Pool

	users      *userStore
	workspaces *workspaceStore
	invites    *inviteStore
	projects   *projectStore
	chat       *chatStore
	activity   *activityStore
}

// New creates a record store over the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	s.users = &userStore{pool: pool}
	s.workspaces = &workspaceStore{pool: pool}
	s.invites = &inviteStore{pool: pool}
	s.projects = &projectStore{pool: pool}
	s.chat = &chatStore{pool: pool}
	s.activity = &activityStore{pool: pool}
	return s
}

func (s *Store) Users() store.Users           { return s.users }
func (s *Store) Workspaces() store.Workspaces { return s.workspaces }
func (s *Store) Invites() store.Invites       { return s.invites }
func (s *Store) Projects() store.Projects     { return s.projects }
func (s *Store) Chat() store.Chat             { return s.chat }
func (s *Store) Activity() store.Activity     { return s.activity }

var _ store.Store = (*Store)(nil)

// mapErr translates pgx-level errors into store sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return store.ErrNotFound
	case db.IsUniqueViolation(err):
		return store.ErrDuplicate
	default:
		return err
	}
}
