package system

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/membersync"
)

// Settings is the single server_settings row.
type Settings struct {
	ServerName     string        `db:"server_name" json:"server_name"`
	MaxPlayers     int           `db:"max_players" json:"max_players"`
	DiscordGuildID string        `db:"discord_guild_id" json:"discord_guild_id"`
	UpdatedBy      uuid.NullUUID `db:"updated_by" json:"-"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Backup is a stored database snapshot (matches backups table).
type Backup struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	StorageKey string        `db:"storage_key" json:"storage_key"`
	SizeBytes  int64         `db:"size_bytes" json:"size_bytes"`
	CreatedBy  uuid.NullUUID `db:"created_by" json:"-"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// Component health states.
const (
	StateOK       = "ok"
	StateDown     = "down"
	StateDegraded = "degraded"
)

// ComponentStatus is the result of one health check.
type ComponentStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Status is the system overview shown to staff.
type Status struct {
	State         string             `json:"state"`
	Components    []ComponentStatus  `json:"components"`
	LastSync      *membersync.Report `json:"last_sync"`
	LastBackup    *Backup            `json:"last_backup"`
	StorageDriver string             `json:"storage_driver"`
	UptimeSeconds int64              `json:"uptime_seconds"`
}

// PublicStats are the counters on the public landing page.
type PublicStats struct {
	ServerName      string `json:"server_name"`
	MaxPlayers      int    `json:"max_players"`
	TotalPlayers    int    `json:"total_players"`
	OnlinePlayers   int    `json:"online_players"`
	RegisteredUsers int    `json:"registered_users"`
}

// Snapshot is the content of a backup file.
type Snapshot struct {
	Version   int                        `json:"version"`
	CreatedAt time.Time                  `json:"created_at"`
	Tables    map[string]json.RawMessage `json:"tables"`
}
