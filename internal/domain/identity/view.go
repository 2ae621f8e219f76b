package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// View is the user shape returned to the dashboard.
type View struct {
	ID          uuid.UUID       `json:"id"`
	Email       string          `json:"email,omitempty"`
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	DiscordID   string          `json:"discord_id,omitempty"`
	Linked      bool            `json:"discord_linked"`
	Roles       []string        `json:"roles"`
	PrimaryRole string          `json:"primary_role"`
	Status      Status          `json:"status"`
	IsOwner     bool            `json:"is_owner"`
	Permissions map[string]bool `json:"permissions"`
	CreatedAt   time.Time       `json:"created_at"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
}

// NewView builds the dashboard view of rec. Permissions lists the gates the
// frontend uses to show or hide sections.
func NewView(rec *Record) View {
	held := rec.RoleSet()
	banned := rec.IsBanned()
	v := View{
		ID:          rec.ID,
		Email:       rec.Email.String,
		Username:    rec.Username,
		DisplayName: rec.DisplayName(),
		AvatarURL:   rec.AvatarURL.String,
		DiscordID:   rec.ExternalID.String,
		Linked:      rec.IsLinked(),
		Roles:       held.Strings(),
		PrimaryRole: string(roles.Highest(held)),
		Status:      rec.Status,
		IsOwner:     rec.IsOwner,
		CreatedAt:   rec.CreatedAt,
		Permissions: map[string]bool{
			"staff":    roles.Allow(held, banned, roles.Staff) == nil,
			"director": roles.Allow(held, banned, roles.Director) == nil,
		},
	}
	for _, d := range roles.Departments() {
		v.Permissions["view_"+string(d)] = roles.AllowDepartmentView(held, banned, d) == nil
		v.Permissions["edit_"+string(d)] = roles.AllowDepartmentEdit(held, banned, d) == nil
	}
	if rec.LastLoginAt.Valid {
		t := rec.LastLoginAt.Time
		v.LastLoginAt = &t
	}
	return v
}

// NewViews maps a list of records.
func NewViews(recs []*Record) []View {
	out := make([]View, 0, len(recs))
	for _, r := range recs {
		out = append(out, NewView(r))
	}
	return out
}
