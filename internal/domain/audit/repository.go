package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repository defines audit log data access
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) ([]*Entry, int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates audit repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, e *Entry) error {
	details := e.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ActorID, e.Action, e.TargetType, e.TargetID, []byte(details), e.CreatedAt)
	return err
}

func (r *repository) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}

	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		where += fmt.Sprintf(` AND a.actor_id = $%d`, len(args))
	}
	if filter.Action != nil {
		args = append(args, *filter.Action)
		where += fmt.Sprintf(` AND a.action = $%d`, len(args))
	}
	if filter.TargetType != nil {
		args = append(args, *filter.TargetType)
		where += fmt.Sprintf(` AND a.target_type = $%d`, len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_log a `+where, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
		SELECT a.id, a.actor_id, u.username AS actor_name, a.action, a.target_type, a.target_id, a.details, a.created_at
		FROM audit_log a
		LEFT JOIN users u ON u.id = a.actor_id
		%s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var entries []*Entry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
