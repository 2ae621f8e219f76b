package identity

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Status governs whether authentication succeeds.
type Status string

const (
	StatusActive Status = "active"
	StatusBanned Status = "banned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusBanned
}

// Record is a dashboard identity (matches users table).
type Record struct {
	ID           uuid.UUID      `db:"id"`
	Email        sql.NullString `db:"email"`
	Username     string         `db:"username"`
	PasswordHash sql.NullString `db:"password_hash"`

	// Linked Discord account
	ExternalID  sql.NullString `db:"discord_id"`
	DiscordName sql.NullString `db:"discord_name"`
	AvatarURL   sql.NullString `db:"avatar_url"`

	Roles       pq.StringArray `db:"roles"`
	PrimaryRole string         `db:"primary_role"`
	Status      Status         `db:"status"`
	IsOwner     bool           `db:"is_owner"`
	Version     int64          `db:"version"`

	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	LastLoginAt sql.NullTime `db:"last_login_at"`
}

// RoleSet returns the record's labels. Unknown labels stored by hand are ignored.
func (r *Record) RoleSet() roles.Set {
	labels := make([]roles.Label, 0, len(r.Roles)+1)
	for _, s := range r.Roles {
		if l := roles.Label(s); l.Valid() {
			labels = append(labels, l)
		}
	}
	labels = append(labels, roles.Baseline)
	return roles.NewSet(labels...)
}

// SetRoles stores set and refreshes the primary role.
func (r *Record) SetRoles(set roles.Set) {
	set = set.Union(roles.Set{roles.Baseline})
	r.Roles = pq.StringArray(set.Strings())
	r.PrimaryRole = string(roles.Highest(set))
}

// IsBanned returns true if the account may not authenticate.
func (r *Record) IsBanned() bool {
	return r.Status == StatusBanned
}

// IsLinked returns true if a Discord account is attached.
func (r *Record) IsLinked() bool {
	return r.ExternalID.Valid && r.ExternalID.String != ""
}

// HasLocalCredential returns true if the account can log in with a password.
func (r *Record) HasLocalCredential() bool {
	return r.Email.Valid && r.PasswordHash.Valid && r.PasswordHash.String != ""
}

// DisplayName prefers the Discord name of linked accounts.
func (r *Record) DisplayName() string {
	if r.DiscordName.Valid && r.DiscordName.String != "" {
		return r.DiscordName.String
	}
	return r.Username
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Roles = append(pq.StringArray(nil), r.Roles...)
	return &c
}

// Snapshot is one observation of a Discord guild member. It is consumed once
// by the engine and never stored.
type Snapshot struct {
	ExternalID  string
	Username    string
	DisplayName string
	AvatarURL   string
	RoleIDs     []string
}

// SnapshotFromMember builds a snapshot from a guild member.
func SnapshotFromMember(m discord.GuildMember) Snapshot {
	return Snapshot{
		ExternalID:  m.User.ID,
		Username:    m.User.Username,
		DisplayName: discordTag(m.User),
		AvatarURL:   m.User.AvatarURL(),
		RoleIDs:     append([]string(nil), m.Roles...),
	}
}

// discordTag keeps the legacy name#1234 form for accounts that still have one.
func discordTag(p discord.Profile) string {
	if p.Discriminator != "" && p.Discriminator != "0" {
		return p.Username + "#" + p.Discriminator
	}
	return p.DisplayName()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
