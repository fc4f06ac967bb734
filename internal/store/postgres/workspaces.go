package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

type workspaceStore struct {
	pool *pgxpool.Pool
}

const workspaceCols = `id, name, owner_user_id, channel_id, created_at`

func scanWorkspace(row pgx.Row) (store.Workspace, error) {
	var (
		w         store.Workspace
		id, owner pgtype.UUID
		channel   pgtype.Text
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &w.Name, &owner, &channel, &createdAt); err != nil {
		return store.Workspace{}, mapErr(err)
	}
	w.ID = db.UUIDToString(id)
	w.OwnerUserID = db.UUIDToString(owner)
	w.ChannelID = db.TextToString(channel)
	w.CreatedAt = db.TimeFromPg(createdAt)
	return w, nil
}

func (s *workspaceStore) Create(ctx context.Context, name, ownerUserID, channelID string) (store.Workspace, error) {
	var owner pgtype.UUID
	if ownerUserID != "" {
		parsed, err := db.ParseUUID(ownerUserID)
		if err != nil {
			return store.Workspace{}, err
		}
		owner = parsed
	}
	return scanWorkspace(s.pool.QueryRow(ctx, `
		INSERT INTO workspaces (name, owner_user_id, channel_id)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING `+workspaceCols, name, owner, channelID))
}

func (s *workspaceStore) Get(ctx context.Context, id string) (store.Workspace, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.Workspace{}, store.ErrNotFound
	}
	return scanWorkspace(s.pool.QueryRow(ctx,
		`SELECT `+workspaceCols+` FROM workspaces WHERE id = $1`, pgID))
}

func (s *workspaceStore) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *workspaceStore) AddMembership(ctx context.Context, userID, workspaceID, role string) (store.Membership, error) {
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return store.Membership{}, store.ErrNotFound
	}
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return store.Membership{}, store.ErrNotFound
	}
	return scanMembership(s.pool.QueryRow(ctx, `
		INSERT INTO workspace_memberships (user_id, workspace_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, workspace_id, role, created_at`,
		pgUserID, pgWsID, role))
}

func (s *workspaceStore) MembershipFor(ctx context.Context, userID, workspaceID string) (store.Membership, error) {
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return store.Membership{}, store.ErrNotFound
	}
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return store.Membership{}, store.ErrNotFound
	}
	return scanMembership(s.pool.QueryRow(ctx, `
		SELECT id, user_id, workspace_id, role, created_at
		FROM workspace_memberships
		WHERE user_id = $1 AND workspace_id = $2`,
		pgUserID, pgWsID))
}

func (s *workspaceStore) ListMembers(ctx context.Context, workspaceID string) ([]store.User, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixedUserCols("u")+`
		FROM users u
		JOIN workspace_memberships m ON m.user_id = u.id
		WHERE m.workspace_id = $1
		ORDER BY m.created_at`, pgWsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

func scanMembership(row pgx.Row) (store.Membership, error) {
	var (
		m                 store.Membership
		id, userID, wsID  pgtype.UUID
		createdAt         pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &wsID, &m.Role, &createdAt); err != nil {
		return store.Membership{}, mapErr(err)
	}
	m.ID = db.UUIDToString(id)
	m.UserID = db.UUIDToString(userID)
	m.WorkspaceID = db.UUIDToString(wsID)
	m.CreatedAt = db.TimeFromPg(createdAt)
	return m, nil
}

func prefixedUserCols(alias string) string {
	return alias + ".id, " + alias + ".discord_id, " + alias + ".email, " + alias + ".name, " +
		alias + ".avatar_url, " + alias + ".role, " + alias + ".workspace_id, " + alias + ".onboarded, " +
		alias + ".skills, " + alias + ".interests, " + alias + ".created_at, " + alias + ".updated_at"
}
