package system

// UpdateSettingsRequest for PUT /api/settings
type UpdateSettingsRequest struct {
	ServerName     string `json:"server_name" validate:"required,min=2,max=100"`
	MaxPlayers     int    `json:"max_players" validate:"required,min=1,max=1000"`
	DiscordGuildID string `json:"discord_guild_id" validate:"omitempty,numeric,max=32"`
}
