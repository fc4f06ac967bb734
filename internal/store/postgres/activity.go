package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

type activityStore struct {
	pool *pgxpool.Pool
}

const activityCols = `id, workspace_id, actor_user_id, actor_name, action, target, created_at`

func scanActivity(row pgx.Row) (store.ActivityEntry, error) {
	var (
		e               store.ActivityEntry
		id, wsID, actor pgtype.UUID
		createdAt       pgtype.Timestamptz
	)
	if err := row.Scan(&id, &wsID, &actor, &e.ActorName, &e.Action, &e.Target, &createdAt); err != nil {
		return store.ActivityEntry{}, mapErr(err)
	}
	e.ID = db.UUIDToString(id)
	e.WorkspaceID = db.UUIDToString(wsID)
	e.ActorUserID = db.UUIDToString(actor)
	e.CreatedAt = db.TimeFromPg(createdAt)
	return e, nil
}

func (s *activityStore) Append(ctx context.Context, workspaceID, actorUserID, actorName, action, target string) (store.ActivityEntry, error) {
	var wsID pgtype.UUID
	if workspaceID != "" {
		parsed, err := db.ParseUUID(workspaceID)
		if err != nil {
			return store.ActivityEntry{}, err
		}
		wsID = parsed
	}
	var actor pgtype.UUID
	if actorUserID != "" {
		parsed, err := db.ParseUUID(actorUserID)
		if err != nil {
			return store.ActivityEntry{}, err
		}
		actor = parsed
	}
	return scanActivity(s.pool.QueryRow(ctx, `
		INSERT INTO activity_logs (workspace_id, actor_user_id, actor_name, action, target)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+activityCols, wsID, actor, actorName, action, target))
}

func (s *activityStore) List(ctx context.Context, workspaceID string, limit int) ([]store.ActivityEntry, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+activityCols+` FROM activity_logs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, pgWsID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.ActivityEntry
	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *activityStore) RenameActor(ctx context.Context, from, to string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE activity_logs SET actor_name = $2 WHERE actor_name = $1`, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
