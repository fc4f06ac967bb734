package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

type inviteStore struct {
	pool *pgxpool.Pool
}

const inviteCols = `id, workspace_id, token, issued_by_user_id, expires_at, used_at, used_by_user_id, created_at`

func scanInvite(row pgx.Row) (store.Invite, error) {
	var (
		inv                        store.Invite
		id, wsID, issuedBy, usedBy pgtype.UUID
		expiresAt, usedAt, created pgtype.Timestamptz
	)
	if err := row.Scan(&id, &wsID, &inv.Token, &issuedBy, &expiresAt, &usedAt, &usedBy, &created); err != nil {
		return store.Invite{}, mapErr(err)
	}
	inv.ID = db.UUIDToString(id)
	inv.WorkspaceID = db.UUIDToString(wsID)
	inv.IssuedByUserID = db.UUIDToString(issuedBy)
	inv.UsedByUserID = db.UUIDToString(usedBy)
	inv.ExpiresAt = db.TimeFromPg(expiresAt)
	inv.UsedAt = db.TimeFromPg(usedAt)
	inv.CreatedAt = db.TimeFromPg(created)
	return inv, nil
}

func (s *inviteStore) Create(ctx context.Context, workspaceID, token, issuedByUserID string, expiresAt time.Time) (store.Invite, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return store.Invite{}, store.ErrNotFound
	}
	var issuedBy pgtype.UUID
	if issuedByUserID != "" {
		parsed, err := db.ParseUUID(issuedByUserID)
		if err != nil {
			return store.Invite{}, err
		}
		issuedBy = parsed
	}
	return scanInvite(s.pool.QueryRow(ctx, `
		INSERT INTO workspace_invites (workspace_id, token, issued_by_user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+inviteCols,
		pgWsID, token, issuedBy, pgtype.Timestamptz{Time: expiresAt, Valid: true}))
}

func (s *inviteStore) GetByToken(ctx context.Context, token string) (store.Invite, error) {
	return scanInvite(s.pool.QueryRow(ctx,
		`SELECT `+inviteCols+` FROM workspace_invites WHERE token = $1`, token))
}

func (s *inviteStore) MarkUsed(ctx context.Context, id, usedByUserID string) (store.Invite, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.Invite{}, store.ErrNotFound
	}
	var usedBy pgtype.UUID
	if usedByUserID != "" {
		parsed, err := db.ParseUUID(usedByUserID)
		if err != nil {
			return store.Invite{}, err
		}
		usedBy = parsed
	}
	return scanInvite(s.pool.QueryRow(ctx, `
		UPDATE workspace_invites
		SET used_at = now(), used_by_user_id = $2
		WHERE id = $1
		RETURNING `+inviteCols, pgID, usedBy))
}

func (s *inviteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM workspace_invites WHERE expires_at < $1`,
		pgtype.Timestamptz{Time: now, Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
