package membersync

import (
	"time"

	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
)

// Report summarises one full membership pass.
type Report struct {
	Total     int           `json:"total"`
	Synced    int           `json:"synced"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Cancelled bool          `json:"cancelled"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Result is the metrics label for the pass.
func (r Report) Result() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// EventType names a member event forwarded by the bot.
type EventType string

const (
	EventMemberJoined  EventType = "member_joined"
	EventMemberUpdated EventType = "member_updated"
	EventMemberLeft    EventType = "member_left"
)

// Event is the payload posted to the events endpoint.
type Event struct {
	Type   EventType            `json:"type" validate:"required,oneof=member_joined member_updated member_left"`
	Member *discord.GuildMember `json:"member,omitempty"`
	Before *discord.GuildMember `json:"before,omitempty"`
	UserID string               `json:"user_id,omitempty"`
}
