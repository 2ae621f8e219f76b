package moderation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Action is a moderation log action.
type Action string

const (
	ActionWarn       Action = "warn"
	ActionKick       Action = "kick"
	ActionBan        Action = "ban"
	ActionUnban      Action = "unban"
	ActionMoneyAdded Action = "money_added"
)

// LogEntry is one moderation_logs row with player and moderator names.
type LogEntry struct {
	ID            int64          `db:"id" json:"id"`
	PlayerID      int64          `db:"player_id" json:"player_id"`
	PlayerName    string         `db:"player_name" json:"player_name"`
	ModeratorID   uuid.NullUUID  `db:"moderator_id" json:"moderator_id"`
	ModeratorName sql.NullString `db:"moderator_name" json:"-"`
	Action        Action         `db:"action" json:"action"`
	Reason        string         `db:"reason" json:"reason"`
	Duration      sql.NullString `db:"duration" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// Ban is an active or lifted ban (matches bans table).
type Ban struct {
	ID          int64         `db:"id" json:"id"`
	PlayerID    int64         `db:"player_id" json:"player_id"`
	PlayerName  string        `db:"player_name" json:"player_name"`
	ModeratorID uuid.NullUUID `db:"moderator_id" json:"moderator_id"`
	Reason      string        `db:"reason" json:"reason"`
	Duration    string        `db:"duration" json:"duration"`
	ExpiresAt   sql.NullTime  `db:"expires_at" json:"-"`
	Active      bool          `db:"active" json:"active"`
	LiftedBy    uuid.NullUUID `db:"lifted_by" json:"-"`
	LiftedAt    sql.NullTime  `db:"lifted_at" json:"-"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// Offender is a player with many moderation actions.
type Offender struct {
	PlayerID int64  `db:"player_id" json:"player_id"`
	Username string `db:"username" json:"name"`
	Bans     int    `db:"bans" json:"bans"`
	Kicks    int    `db:"kicks" json:"kicks"`
	Warns    int    `db:"warns" json:"warns"`
}

// StaffStats summarise accounts and offenders for the staff panel.
type StaffStats struct {
	TotalUsers    int         `db:"total_users" json:"total_users"`
	ActiveUsers   int         `db:"active_users" json:"active_users"`
	BannedUsers   int         `db:"banned_users" json:"banned_users"`
	DiscordLinked int         `db:"discord_linked" json:"discord_linked"`
	StaffCount    int         `db:"staff_count" json:"staff_count"`
	ActiveBans    int         `db:"active_bans" json:"active_bans"`
	TopOffenders  []*Offender `db:"-" json:"top_offenders"`
}

// RecentActions groups the latest entries per action.
type RecentActions struct {
	Bans  []*LogEntry `json:"bans"`
	Kicks []*LogEntry `json:"kicks"`
	Warns []*LogEntry `json:"warns"`
}
