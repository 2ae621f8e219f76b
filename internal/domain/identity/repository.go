package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const sqlStateUniqueViolation = "23505"

const selectColumns = `
	id, email, username, password_hash, discord_id, discord_name, avatar_url,
	roles, primary_role, status, is_owner, version, created_at, updated_at, last_login_at`

// Store is the identity persistence contract. Lookups return nil, nil when
// nothing matches. Every method is atomic for a single record.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
	FindByUsername(ctx context.Context, username string) (*Record, error)
	FindByExternalID(ctx context.Context, externalID string) (*Record, error)
	FindOwner(ctx context.Context) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	// Update writes rec if its version is current and bumps rec.Version.
	Update(ctx context.Context, rec *Record) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListAll(ctx context.Context) ([]*Record, error)
	ListByRole(ctx context.Context, label string) ([]*Record, error)
	Count(ctx context.Context) (int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres identity store.
func NewRepository(db *sqlx.DB) Store {
	return &repository{db: db}
}

func (r *repository) get(ctx context.Context, where string, arg any) (*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE ` + where
	var rec Record
	if err := r.db.GetContext(ctx, &rec, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*Record, error) {
	return r.get(ctx, `lower(email) = lower($1)`, email)
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*Record, error) {
	return r.get(ctx, `lower(username) = lower($1)`, username)
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*Record, error) {
	return r.get(ctx, `discord_id = $1`, externalID)
}

func (r *repository) FindOwner(ctx context.Context) (*Record, error) {
	return r.get(ctx, `is_owner = $1`, true)
}

func (r *repository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO users (
			id, email, username, password_hash, discord_id, discord_name, avatar_url,
			roles, primary_role, status, is_owner, version, created_at, updated_at, last_login_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Email,
		rec.Username,
		rec.PasswordHash,
		rec.ExternalID,
		rec.DiscordName,
		rec.AvatarURL,
		rec.Roles,
		rec.PrimaryRole,
		rec.Status,
		rec.IsOwner,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.LastLoginAt,
	)
	if err != nil {
		return fmt.Errorf("identity repository create: %w", mapUniqueViolation(err))
	}
	rec.Version = 1
	return nil
}

func (r *repository) Update(ctx context.Context, rec *Record) error {
	query := `
		UPDATE users
		SET email = $3, username = $4, password_hash = $5, discord_id = $6, discord_name = $7,
		    avatar_url = $8, roles = $9, primary_role = $10, status = $11,
		    version = version + 1, updated_at = $12
		WHERE id = $1 AND version = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Version,
		rec.Email,
		rec.Username,
		rec.PasswordHash,
		rec.ExternalID,
		rec.DiscordName,
		rec.AvatarURL,
		rec.Roles,
		rec.PrimaryRole,
		rec.Status,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("identity repository update: %w", mapUniqueViolation(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("identity repository update: %w", err)
	}
	if n == 0 {
		return ErrStaleRecord
	}
	rec.Version++
	return nil
}

func (r *repository) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1 AND is_owner = false`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListAll(ctx context.Context) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM users ORDER BY created_at`
	var recs []*Record
	if err := r.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *repository) ListByRole(ctx context.Context, label string) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE $1 = ANY(roles) ORDER BY username`
	var recs []*Record
	if err := r.db.SelectContext(ctx, &recs, query, label); err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

// mapUniqueViolation converts constraint violations to domain errors.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != sqlStateUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_discord_id_key":
		return ErrConflictingLink
	case "users_email_lower_idx":
		return ErrEmailTaken
	case "users_username_lower_idx":
		return ErrUsernameTaken
	}
	return err
}
