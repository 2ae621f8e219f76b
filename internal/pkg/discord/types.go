package discord

import (
	"fmt"
	"strconv"
	"time"
)

const cdnURL = "https://cdn.discordapp.com"

// Profile is a Discord user as returned by /users/@me or inside a member.
type Profile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	GlobalName    string `json:"global_name"`
	Avatar        string `json:"avatar"`
	Discriminator string `json:"discriminator"`
	Bot           bool   `json:"bot"`
}

// DisplayName prefers the global display name over the username.
func (p Profile) DisplayName() string {
	if p.GlobalName != "" {
		return p.GlobalName
	}
	return p.Username
}

// AvatarURL returns the CDN URL of the user's avatar.
func (p Profile) AvatarURL() string {
	return AvatarURL(p.ID, p.Avatar, p.Discriminator)
}

// GuildMember is a member of the configured guild.
type GuildMember struct {
	User     Profile   `json:"user"`
	Nick     string    `json:"nick"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// DisplayName prefers the guild nickname.
func (m GuildMember) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.User.DisplayName()
}

// Role is a guild role.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Managed  bool   `json:"managed"`
}

// MemberLookup is the result of FetchGuildMember: Member, NotAMember or LookupError.
type MemberLookup interface {
	memberLookup()
}

// Member is a successful lookup.
type Member struct {
	GuildMember
}

// NotAMember means the user exists but is not in the guild.
type NotAMember struct {
	UserID string
}

// LookupError means Discord could not answer.
type LookupError struct {
	UserID string
	Err    error
}

func (Member) memberLookup()      {}
func (NotAMember) memberLookup()  {}
func (LookupError) memberLookup() {}

func (e LookupError) Error() string {
	return fmt.Sprintf("guild member lookup %s: %v", e.UserID, e.Err)
}

func (e LookupError) Unwrap() error {
	return e.Err
}

// AvatarURL builds a CDN URL. Users without a custom avatar get one of the
// default embed avatars.
func AvatarURL(userID, avatarHash, discriminator string) string {
	if avatarHash != "" {
		return fmt.Sprintf("%s/avatars/%s/%s.png?size=128", cdnURL, userID, avatarHash)
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnURL, defaultAvatarIndex(userID, discriminator))
}

func defaultAvatarIndex(userID, discriminator string) uint64 {
	if discriminator != "" && discriminator != "0" {
		d, err := strconv.ParseUint(discriminator, 10, 64)
		if err == nil {
			return d % 5
		}
	}
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return 0
	}
	return (id >> 22) % 6
}
