package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

type userStore struct {
	pool *pgxpool.Pool
}

const userCols = `id, discord_id, email, name, avatar_url, role, workspace_id, onboarded, skills, interests, created_at, updated_at`

func scanUser(row pgx.Row) (store.User, error) {
	var (
		u                  store.User
		id, workspaceID    pgtype.UUID
		discordID, avatar  pgtype.Text
		createdAt, updated pgtype.Timestamptz
	)
	err := row.Scan(&id, &discordID, &u.Email, &u.Name, &avatar, &u.Role,
		&workspaceID, &u.Onboarded, &u.Skills, &u.Interests, &createdAt, &updated)
	if err != nil {
		return store.User{}, mapErr(err)
	}
	u.ID = db.UUIDToString(id)
	u.DiscordID = db.TextToString(discordID)
	u.AvatarURL = db.TextToString(avatar)
	u.WorkspaceID = db.UUIDToString(workspaceID)
	u.CreatedAt = db.TimeFromPg(createdAt)
	u.UpdatedAt = db.TimeFromPg(updated)
	return u, nil
}

func (s *userStore) Get(ctx context.Context, id string) (store.User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.User{}, store.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, pgID))
}

func (s *userStore) List(ctx context.Context) ([]store.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) Resolved(ctx context.Context, id string) (store.ResolvedUser, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return store.ResolvedUser{}, err
	}
	resolved := store.ResolvedUser{User: u}

	if u.WorkspaceID != "" {
		pgWsID, err := db.ParseUUID(u.WorkspaceID)
		if err == nil {
			var name string
			err = s.pool.QueryRow(ctx,
				`SELECT name FROM workspaces WHERE id = $1`, pgWsID).Scan(&name)
			if err != nil && !errorsIsNoRows(err) {
				return store.ResolvedUser{}, err
			}
			resolved.WorkspaceName = name
		}
	}

	pgID, _ := db.ParseUUID(u.ID)
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.user_id, m.workspace_id, m.role, m.created_at, w.name,
		       (SELECT count(*) FROM workspace_memberships m2 WHERE m2.workspace_id = m.workspace_id),
		       (SELECT count(*) FROM projects p WHERE p.workspace_id = m.workspace_id)
		FROM workspace_memberships m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1
		ORDER BY m.created_at`, pgID)
	if err != nil {
		return store.ResolvedUser{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d                  store.MembershipDetail
			mID, userID, wsID  pgtype.UUID
			createdAt          pgtype.Timestamptz
		)
		if err := rows.Scan(&mID, &userID, &wsID, &d.Role, &createdAt,
			&d.WorkspaceName, &d.MemberCount, &d.ProjectCount); err != nil {
			return store.ResolvedUser{}, err
		}
		d.ID = db.UUIDToString(mID)
		d.UserID = db.UUIDToString(userID)
		d.WorkspaceID = db.UUIDToString(wsID)
		d.CreatedAt = db.TimeFromPg(createdAt)
		resolved.Memberships = append(resolved.Memberships, d)
	}
	return resolved, rows.Err()
}

func (s *userStore) Reconcile(ctx context.Context, discordID, email, placeholderEmail string) (store.User, error) {
	// The OR across discord id and both email forms reconciles users created
	// by different code paths; the discord id match wins when several rows
	// qualify.
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userCols+` FROM users
		WHERE discord_id = $1
		   OR email = NULLIF($2, '')
		   OR email = $3
		ORDER BY (discord_id = $1) DESC NULLS LAST
		LIMIT 1`, discordID, email, placeholderEmail))
}

func (s *userStore) Create(ctx context.Context, nu store.NewUser) (store.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.User{}, err
	}
	defer tx.Rollback(ctx)

	// The first creation to claim the bootstrap flag gets the Admin role;
	// the unique primary key makes the claim atomic under concurrency.
	role := store.RoleMember
	tag, err := tx.Exec(ctx,
		`INSERT INTO system_flags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		store.BootstrapFlag)
	if err != nil {
		return store.User{}, err
	}
	if tag.RowsAffected() == 1 {
		role = store.RoleAdmin
	}

	u, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (discord_id, email, name, avatar_url, role, onboarded, skills, interests)
		VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		RETURNING `+userCols,
		nu.DiscordID, nu.Email, nu.Name, nu.AvatarURL, role, nu.Onboarded, nu.Skills, nu.Interests))
	if err != nil {
		return store.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.User{}, mapErr(err)
	}
	return u, nil
}

func (s *userStore) CompleteOnboarding(ctx context.Context, id, name, skills, interests string) (store.User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.User{}, store.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, skills = $3, interests = $4, onboarded = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING `+userCols, pgID, name, skills, interests))
}

func (s *userStore) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (store.User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.User{}, store.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
		    avatar_url = COALESCE($3, avatar_url),
		    skills = COALESCE($4, skills),
		    interests = COALESCE($5, interests),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userCols,
		pgID, upd.Name, upd.AvatarURL, upd.Skills, upd.Interests))
}

func (s *userStore) UpdateRole(ctx context.Context, id, role string) (store.User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.User{}, store.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userCols, pgID, role))
}

func (s *userStore) SetPrimaryWorkspace(ctx context.Context, id, workspaceID string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	var pgWsID pgtype.UUID
	if workspaceID != "" {
		pgWsID, err = db.ParseUUID(workspaceID)
		if err != nil {
			return fmt.Errorf("workspace id: %w", err)
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET workspace_id = $2, updated_at = now() WHERE id = $1`,
		pgID, pgWsID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	// Deleting an already-deleted user is a no-op, which keeps the deletion
	// transition retryable.
	_, err = s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, pgID)
	return err
}

func errorsIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
