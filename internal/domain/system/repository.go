package system

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// backupTables are copied into every snapshot, in restore order.
var backupTables = []string{
	"users",
	"players",
	"moderation_logs",
	"bans",
	"department_command",
	"department_documents",
	"server_settings",
	"audit_log",
}

// Repository defines settings and backup data access interface
type Repository interface {
	GetSettings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, s *Settings) error
	CountUsers(ctx context.Context) (int, error)

	// Snapshot reads every backup table in one consistent transaction.
	Snapshot(ctx context.Context) (map[string]json.RawMessage, error)
	CreateBackup(ctx context.Context, b *Backup) error
	LastBackup(ctx context.Context) (*Backup, error)
	ListBackups(ctx context.Context, limit int) ([]*Backup, error)
	Ping(ctx context.Context) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new system repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.db.GetContext(ctx, &s, `
		SELECT server_name, max_players, discord_guild_id, updated_by, updated_at
		FROM server_settings WHERE id = 1
	`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) UpdateSettings(ctx context.Context, s *Settings) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO server_settings (id, server_name, max_players, discord_guild_id, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			server_name = EXCLUDED.server_name,
			max_players = EXCLUDED.max_players,
			discord_guild_id = EXCLUDED.discord_guild_id,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, s.ServerName, s.MaxPlayers, s.DiscordGuildID, s.UpdatedBy).Scan(&s.UpdatedAt)
}

func (r *repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

func (r *repository) Snapshot(ctx context.Context) (map[string]json.RawMessage, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make(map[string]json.RawMessage, len(backupTables))
	for _, table := range backupTables {
		var raw []byte
		// table names come from the fixed list above
		query := fmt.Sprintf(`SELECT COALESCE(json_agg(t), '[]'::json) FROM %s t`, table)
		if err := tx.GetContext(ctx, &raw, query); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", table, err)
		}
		out[table] = raw
	}
	return out, tx.Commit()
}

func (r *repository) CreateBackup(ctx context.Context, b *Backup) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backups (id, storage_key, size_bytes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.StorageKey, b.SizeBytes, b.CreatedBy, b.CreatedAt)
	return err
}

func (r *repository) LastBackup(ctx context.Context) (*Backup, error) {
	var b Backup
	err := r.db.GetContext(ctx, &b, `
		SELECT id, storage_key, size_bytes, created_by, created_at
		FROM backups ORDER BY created_at DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) ListBackups(ctx context.Context, limit int) ([]*Backup, error) {
	backups := []*Backup{}
	err := r.db.SelectContext(ctx, &backups, `
		SELECT id, storage_key, size_bytes, created_by, created_at
		FROM backups ORDER BY created_at DESC LIMIT $1
	`, limit)
	return backups, err
}

func (r *repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
