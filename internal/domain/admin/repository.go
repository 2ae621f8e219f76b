package admin

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
)

// Repository lists users for the admin panel. Mutations go through the
// identity engine.
type Repository interface {
	ListUsers(ctx context.Context, filter UserFilter) ([]*identity.Record, int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new admin repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListUsers(ctx context.Context, filter UserFilter) ([]*identity.Record, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.Role != "" {
		where += ` AND $` + strconv.Itoa(argIndex) + ` = ANY(roles)`
		args = append(args, filter.Role)
		argIndex++
	}
	if filter.Status != "" {
		where += ` AND status = $` + strconv.Itoa(argIndex)
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.Search != "" {
		where += ` AND (username ILIKE $` + strconv.Itoa(argIndex) +
			` OR email ILIKE $` + strconv.Itoa(argIndex) +
			` OR discord_name ILIKE $` + strconv.Itoa(argIndex) + `)`
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT
		id, email, username, password_hash, discord_id, discord_name, avatar_url,
		roles, primary_role, status, is_owner, version, created_at, updated_at, last_login_at
		FROM users` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argIndex) + ` OFFSET $` + strconv.Itoa(argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	recs := []*identity.Record{}
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}
