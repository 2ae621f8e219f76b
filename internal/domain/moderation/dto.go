package moderation

import "time"

// ActionRequest for POST /api/moderation/warn, /kick and /unban
type ActionRequest struct {
	PlayerID int64  `json:"player_id" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"required,min=3,max=500"`
}

// BanRequest for POST /api/moderation/ban
type BanRequest struct {
	PlayerID int64  `json:"player_id" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"required,min=3,max=500"`
	Duration string `json:"duration" validate:"required,ban_duration"`
}

// LogEntryResponse represents a moderation log entry in API response
type LogEntryResponse struct {
	ID            int64     `json:"id"`
	PlayerID      int64     `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	ModeratorName string    `json:"moderator_name"`
	Action        Action    `json:"action"`
	Reason        string    `json:"reason"`
	Duration      string    `json:"duration,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// BanResponse represents a ban in API response
type BanResponse struct {
	ID         int64      `json:"id"`
	PlayerID   int64      `json:"player_id"`
	PlayerName string     `json:"player_name"`
	Reason     string     `json:"reason"`
	Duration   string     `json:"duration"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RecentActionsResponse for GET /api/staff/recent-actions
type RecentActionsResponse struct {
	Bans  []LogEntryResponse `json:"bans"`
	Kicks []LogEntryResponse `json:"kicks"`
	Warns []LogEntryResponse `json:"warns"`
}

func newLogEntryResponse(e *LogEntry) LogEntryResponse {
	name := "System"
	if e.ModeratorName.Valid {
		name = e.ModeratorName.String
	}
	return LogEntryResponse{
		ID:            e.ID,
		PlayerID:      e.PlayerID,
		PlayerName:    e.PlayerName,
		ModeratorName: name,
		Action:        e.Action,
		Reason:        e.Reason,
		Duration:      e.Duration.String,
		CreatedAt:     e.CreatedAt,
	}
}

func newLogEntryResponses(entries []*LogEntry) []LogEntryResponse {
	out := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newLogEntryResponse(e))
	}
	return out
}

func newBanResponse(b *Ban) BanResponse {
	resp := BanResponse{
		ID:         b.ID,
		PlayerID:   b.PlayerID,
		PlayerName: b.PlayerName,
		Reason:     b.Reason,
		Duration:   b.Duration,
		CreatedAt:  b.CreatedAt,
	}
	if b.ExpiresAt.Valid {
		t := b.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	return resp
}
