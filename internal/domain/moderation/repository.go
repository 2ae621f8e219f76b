package moderation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository defines moderation data access interface
type Repository interface {
	// Record writes a log entry. Kicks also mark the player offline.
	Record(ctx context.Context, playerID int64, moderatorID uuid.UUID, action Action, reason string) (*LogEntry, error)
	CreateBan(ctx context.Context, playerID int64, moderatorID uuid.UUID, reason string, d BanDuration, now time.Time) (*Ban, error)
	LiftBan(ctx context.Context, playerID int64, moderatorID uuid.UUID, reason string, now time.Time) (*LogEntry, error)
	ListActiveBans(ctx context.Context, now time.Time) ([]*Ban, error)

	History(ctx context.Context, playerID *int64, limit int) ([]*LogEntry, error)
	Recent(ctx context.Context, action Action, limit int) ([]*LogEntry, error)
	StaffStats(ctx context.Context, staffLabels []string, offenders int) (*StaffStats, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new moderation repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const logColumns = `
	ml.id, ml.player_id, p.username AS player_name, ml.moderator_id, u.username AS moderator_name,
	ml.action, ml.reason, ml.duration, ml.created_at`

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func (r *repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func lockPlayer(ctx context.Context, tx *sqlx.Tx, playerID int64) error {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM players WHERE id = $1 FOR UPDATE`, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPlayerNotFound
	}
	return err
}

func insertLog(ctx context.Context, tx *sqlx.Tx, playerID int64, moderatorID uuid.UUID, action Action, reason string, duration *string) (*LogEntry, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO moderation_logs (player_id, moderator_id, action, reason, duration)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, playerID, nullUUID(moderatorID), string(action), reason, duration)
	if err != nil {
		return nil, err
	}

	var entry LogEntry
	err = tx.GetContext(ctx, &entry, `SELECT `+logColumns+`
		FROM moderation_logs ml
		JOIN players p ON p.id = ml.player_id
		LEFT JOIN users u ON u.id = ml.moderator_id
		WHERE ml.id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) Record(ctx context.Context, playerID int64, moderatorID uuid.UUID, action Action, reason string) (*LogEntry, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockPlayer(ctx, tx, playerID); err != nil {
		return nil, err
	}
	if action == ActionKick {
		if _, err := tx.ExecContext(ctx, `
			UPDATE players SET online = FALSE, online_since = NULL, last_seen = NOW()
			WHERE id = $1
		`, playerID); err != nil {
			return nil, err
		}
	}

	entry, err := insertLog(ctx, tx, playerID, moderatorID, action, reason, nil)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit()
}

func (r *repository) CreateBan(ctx context.Context, playerID int64, moderatorID uuid.UUID, reason string, d BanDuration, now time.Time) (*Ban, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockPlayer(ctx, tx, playerID); err != nil {
		return nil, err
	}

	// expired bans no longer count as active
	if _, err := tx.ExecContext(ctx, `
		UPDATE bans SET active = FALSE
		WHERE player_id = $1 AND active AND expires_at IS NOT NULL AND expires_at <= $2
	`, playerID, now); err != nil {
		return nil, err
	}

	var ban Ban
	err = tx.GetContext(ctx, &ban, `
		WITH b AS (
			INSERT INTO bans (player_id, moderator_id, reason, duration, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *
		)
		SELECT b.*, p.username AS player_name FROM b JOIN players p ON p.id = b.player_id
	`, playerID, nullUUID(moderatorID), reason, d.Text, d.ExpiresAt(now), now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyBanned
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE players SET online = FALSE, online_since = NULL, last_seen = NOW()
		WHERE id = $1
	`, playerID); err != nil {
		return nil, err
	}

	if _, err := insertLog(ctx, tx, playerID, moderatorID, ActionBan, reason, &d.Text); err != nil {
		return nil, err
	}
	return &ban, tx.Commit()
}

func (r *repository) LiftBan(ctx context.Context, playerID int64, moderatorID uuid.UUID, reason string, now time.Time) (*LogEntry, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockPlayer(ctx, tx, playerID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bans SET active = FALSE, lifted_by = $2, lifted_at = $3
		WHERE player_id = $1 AND active AND (expires_at IS NULL OR expires_at > $3)
	`, playerID, nullUUID(moderatorID), now)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotBanned
	}

	entry, err := insertLog(ctx, tx, playerID, moderatorID, ActionUnban, reason, nil)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit()
}

func (r *repository) ListActiveBans(ctx context.Context, now time.Time) ([]*Ban, error) {
	bans := []*Ban{}
	err := r.db.SelectContext(ctx, &bans, `
		SELECT b.*, p.username AS player_name
		FROM bans b
		JOIN players p ON p.id = b.player_id
		WHERE b.active AND (b.expires_at IS NULL OR b.expires_at > $1)
		ORDER BY b.created_at DESC
	`, now)
	return bans, err
}

func (r *repository) History(ctx context.Context, playerID *int64, limit int) ([]*LogEntry, error) {
	entries := []*LogEntry{}
	err := r.db.SelectContext(ctx, &entries, `SELECT `+logColumns+`
		FROM moderation_logs ml
		JOIN players p ON p.id = ml.player_id
		LEFT JOIN users u ON u.id = ml.moderator_id
		WHERE $1::bigint IS NULL OR ml.player_id = $1
		ORDER BY ml.created_at DESC, ml.id DESC
		LIMIT $2`, playerID, limit)
	return entries, err
}

func (r *repository) Recent(ctx context.Context, action Action, limit int) ([]*LogEntry, error) {
	entries := []*LogEntry{}
	err := r.db.SelectContext(ctx, &entries, `SELECT `+logColumns+`
		FROM moderation_logs ml
		JOIN players p ON p.id = ml.player_id
		LEFT JOIN users u ON u.id = ml.moderator_id
		WHERE ml.action = $1
		ORDER BY ml.created_at DESC, ml.id DESC
		LIMIT $2`, string(action), limit)
	return entries, err
}

func (r *repository) StaffStats(ctx context.Context, staffLabels []string, offenders int) (*StaffStats, error) {
	var stats StaffStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_users,
			COUNT(*) FILTER (WHERE status = 'active') AS active_users,
			COUNT(*) FILTER (WHERE status = 'banned') AS banned_users,
			COUNT(*) FILTER (WHERE discord_id IS NOT NULL) AS discord_linked,
			COUNT(*) FILTER (WHERE roles && $1) AS staff_count,
			(SELECT COUNT(*) FROM bans WHERE active AND (expires_at IS NULL OR expires_at > NOW())) AS active_bans
		FROM users
	`, pq.StringArray(staffLabels))
	if err != nil {
		return nil, err
	}

	stats.TopOffenders = []*Offender{}
	err = r.db.SelectContext(ctx, &stats.TopOffenders, `
		SELECT
			p.id AS player_id,
			p.username,
			COUNT(*) FILTER (WHERE ml.action = 'ban') AS bans,
			COUNT(*) FILTER (WHERE ml.action = 'kick') AS kicks,
			COUNT(*) FILTER (WHERE ml.action = 'warn') AS warns
		FROM moderation_logs ml
		JOIN players p ON p.id = ml.player_id
		WHERE ml.action IN ('ban', 'kick', 'warn')
		GROUP BY p.id, p.username
		ORDER BY 3 DESC, 4 DESC, 5 DESC, p.id
		LIMIT $1
	`, offenders)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
