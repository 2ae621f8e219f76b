package department

import (
	"time"

	"github.com/google/uuid"
)

// CommandMember is one entry of a department's command roster.
type CommandMember struct {
	ID         int64     `db:"id" json:"id"`
	Department string    `db:"department" json:"department"`
	Name       string    `db:"name" json:"name"`
	Rank       string    `db:"rank" json:"rank"`
	DiscordTag string    `db:"discord_tag" json:"discord_tag"`
	RankOrder  int       `db:"rank_order" json:"rank_order"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Document is a department document (SOPs, manuals).
type Document struct {
	ID         int64         `db:"id" json:"id"`
	Department string        `db:"department" json:"department"`
	Title      string        `db:"title" json:"title"`
	Content    string        `db:"content" json:"content"`
	UpdatedBy  uuid.NullUUID `db:"updated_by" json:"-"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}
