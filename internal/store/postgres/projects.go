package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/store"
)

type projectStore struct {
	pool *pgxpool.Pool
}

const projectCols = `id, workspace_id, name, description, lead_user_id, created_at, updated_at`

func scanProject(row pgx.Row) (store.Project, error) {
	var (
		p                  store.Project
		id, wsID, lead     pgtype.UUID
		createdAt, updated pgtype.Timestamptz
	)
	if err := row.Scan(&id, &wsID, &p.Name, &p.Description, &lead, &createdAt, &updated); err != nil {
		return store.Project{}, mapErr(err)
	}
	p.ID = db.UUIDToString(id)
	p.WorkspaceID = db.UUIDToString(wsID)
	p.LeadUserID = db.UUIDToString(lead)
	p.CreatedAt = db.TimeFromPg(createdAt)
	p.UpdatedAt = db.TimeFromPg(updated)
	return p, nil
}

func (s *projectStore) Create(ctx context.Context, workspaceID, name, description string) (store.Project, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return store.Project{}, store.ErrNotFound
	}
	return scanProject(s.pool.QueryRow(ctx, `
		INSERT INTO projects (workspace_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING `+projectCols, pgWsID, name, description))
}

func (s *projectStore) Get(ctx context.Context, id string) (store.Project, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.Project{}, store.ErrNotFound
	}
	return scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = $1`, pgID))
}

func (s *projectStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]store.Project, error) {
	pgWsID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectCols+` FROM projects WHERE workspace_id = $1 ORDER BY created_at`, pgWsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *projectStore) SetLead(ctx context.Context, projectID, leadUserID string) (store.Project, error) {
	pgID, err := db.ParseUUID(projectID)
	if err != nil {
		return store.Project{}, store.ErrNotFound
	}
	var lead pgtype.UUID
	if leadUserID != "" {
		parsed, err := db.ParseUUID(leadUserID)
		if err != nil {
			return store.Project{}, err
		}
		lead = parsed
	}
	return scanProject(s.pool.QueryRow(ctx, `
		UPDATE projects SET lead_user_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+projectCols, pgID, lead))
}

func (s *projectStore) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const taskCols = `id, project_id, title, description, status, assignee_user_id, created_at, updated_at`

func scanTask(row pgx.Row) (store.Task, error) {
	var (
		t                   store.Task
		id, projID, assignee pgtype.UUID
		createdAt, updated  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &projID, &t.Title, &t.Description, &t.Status, &assignee, &createdAt, &updated); err != nil {
		return store.Task{}, mapErr(err)
	}
	t.ID = db.UUIDToString(id)
	t.ProjectID = db.UUIDToString(projID)
	t.AssigneeUserID = db.UUIDToString(assignee)
	t.CreatedAt = db.TimeFromPg(createdAt)
	t.UpdatedAt = db.TimeFromPg(updated)
	return t, nil
}

func (s *projectStore) CreateTask(ctx context.Context, projectID, title, description, assigneeUserID string) (store.Task, error) {
	pgProjID, err := db.ParseUUID(projectID)
	if err != nil {
		return store.Task{}, store.ErrNotFound
	}
	var assignee pgtype.UUID
	if assigneeUserID != "" {
		parsed, err := db.ParseUUID(assigneeUserID)
		if err != nil {
			return store.Task{}, err
		}
		assignee = parsed
	}
	return scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO tasks (project_id, title, description, assignee_user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+taskCols, pgProjID, title, description, assignee))
}

func (s *projectStore) ListTasks(ctx context.Context, projectID string) ([]store.Task, error) {
	pgProjID, err := db.ParseUUID(projectID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE project_id = $1 ORDER BY created_at`, pgProjID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *projectStore) UpdateTaskStatus(ctx context.Context, taskID, status string) (store.Task, error) {
	pgID, err := db.ParseUUID(taskID)
	if err != nil {
		return store.Task{}, store.ErrNotFound
	}
	return scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+taskCols, pgID, status))
}

func (s *projectStore) DeleteTask(ctx context.Context, taskID string) error {
	pgID, err := db.ParseUUID(taskID)
	if err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const commentCols = `id, task_id, author_user_id, author_name, body, created_at`

func scanComment(row pgx.Row) (store.Comment, error) {
	var (
		c          store.Comment
		id, taskID pgtype.UUID
		author     pgtype.UUID
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &taskID, &author, &c.AuthorName, &c.Body, &createdAt); err != nil {
		return store.Comment{}, mapErr(err)
	}
	c.ID = db.UUIDToString(id)
	c.TaskID = db.UUIDToString(taskID)
	c.AuthorUserID = db.UUIDToString(author)
	c.CreatedAt = db.TimeFromPg(createdAt)
	return c, nil
}

func (s *projectStore) CreateComment(ctx context.Context, taskID, authorUserID, authorName, body string) (store.Comment, error) {
	pgTaskID, err := db.ParseUUID(taskID)
	if err != nil {
		return store.Comment{}, store.ErrNotFound
	}
	var author pgtype.UUID
	if authorUserID != "" {
		parsed, err := db.ParseUUID(authorUserID)
		if err != nil {
			return store.Comment{}, err
		}
		author = parsed
	}
	return scanComment(s.pool.QueryRow(ctx, `
		INSERT INTO comments (task_id, author_user_id, author_name, body)
		VALUES ($1, $2, $3, $4)
		RETURNING `+commentCols, pgTaskID, author, authorName, body))
}

func (s *projectStore) ListComments(ctx context.Context, taskID string) ([]store.Comment, error) {
	pgTaskID, err := db.ParseUUID(taskID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentCols+` FROM comments WHERE task_id = $1 ORDER BY created_at`, pgTaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []store.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *projectStore) RenameCommentAuthor(ctx context.Context, from, to string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE comments SET author_name = $2 WHERE author_name = $1`, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
