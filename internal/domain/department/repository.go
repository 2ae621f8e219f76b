package department

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines department data access interface
type Repository interface {
	ListCommand(ctx context.Context) ([]*CommandMember, error)
	AddCommand(ctx context.Context, m *CommandMember) error
	RemoveCommand(ctx context.Context, dept string, id int64) error
	ListDocuments(ctx context.Context) ([]*Document, error)
	UpdateDocument(ctx context.Context, dept string, id int64, title, content string, by uuid.UUID) (*Document, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new department repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListCommand(ctx context.Context) ([]*CommandMember, error) {
	members := []*CommandMember{}
	err := r.db.SelectContext(ctx, &members, `
		SELECT id, department, name, rank, discord_tag, rank_order, created_at
		FROM department_command
		ORDER BY department, rank_order, id
	`)
	return members, err
}

// AddCommand appends m at the end of its department's roster.
func (r *repository) AddCommand(ctx context.Context, m *CommandMember) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO department_command (department, name, rank, discord_tag, rank_order)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(rank_order), 0) + 1 FROM department_command WHERE department = $1))
		RETURNING id, rank_order, created_at
	`, m.Department, m.Name, m.Rank, m.DiscordTag).Scan(&m.ID, &m.RankOrder, &m.CreatedAt)
}

func (r *repository) RemoveCommand(ctx context.Context, dept string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM department_command WHERE id = $1 AND department = $2`, id, dept)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCommandNotFound
	}
	return nil
}

func (r *repository) ListDocuments(ctx context.Context) ([]*Document, error) {
	docs := []*Document{}
	err := r.db.SelectContext(ctx, &docs, `
		SELECT id, department, title, content, updated_by, created_at, updated_at
		FROM department_documents
		ORDER BY department, id
	`)
	return docs, err
}

func (r *repository) UpdateDocument(ctx context.Context, dept string, id int64, title, content string, by uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, `
		UPDATE department_documents
		SET title = $3, content = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1 AND department = $2
		RETURNING id, department, title, content, updated_by, created_at, updated_at
	`, id, dept, title, content, uuid.NullUUID{UUID: by, Valid: by != uuid.Nil})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
