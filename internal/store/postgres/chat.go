package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

type chatStore struct {
	pool *pgxpool.Pool
}

const chatCols = `id, workspace_id, author_user_id, author_name, body, created_at`

func scanChatMessage(row pgx.Row) (store.ChatMessage, error) {
	var (
		m                 store.ChatMessage
		id, wsID, author  pgtype.UUID
		createdAt         pgtype.Timestamptz
	)
	if err := row.Scan(&id, &wsID, &author, &m.AuthorName, &m.Body, &createdAt); err != nil {
		return store.ChatMessage{}, mapErr(err)
	}
	m.ID = db.UUIDToString(id)
	m.WorkspaceID = db.UUIDToString(wsID)
	m.AuthorUserID = db.UUIDToString(author)
	m.CreatedAt = db.TimeFromPg(createdAt)
	return m, nil
}

func (s *chatStore) Append(ctx context.Context, workspaceID, authorUserID, authorName, body string) (store.ChatMessage, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return store.ChatMessage{}, store.ErrNotFound
	}
	var author pgtype.UUID
	if authorUserID != "" {
		parsed, err := db.ParseUUID(authorUserID)
		if err != nil {
			return store.ChatMessage{}, err
		}
		author = parsed
	}
	return scanChatMessage(s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (workspace_id, author_user_id, author_name, body)
		VALUES ($1, $2, $3, $4)
		RETURNING `+chatCols, pgWsID, author, authorName, body))
}

func (s *chatStore) List(ctx context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+chatCols+` FROM chat_messages
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, pgWsID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []store.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *chatStore) RenameAuthor(ctx context.Context, from, to string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_messages SET author_name = $2 WHERE author_name = $1`, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
