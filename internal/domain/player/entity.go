package player

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Account is a player's money account.
type Account string

const (
	AccountCash Account = "cash"
	AccountBank Account = "bank"
)

// Valid reports whether a is a known account.
func (a Account) Valid() bool {
	return a == AccountCash || a == AccountBank
}

// column is the players column holding the account balance.
func (a Account) column() string {
	if a == AccountBank {
		return "bank_money"
	}
	return "cash_money"
}

// Player is a game server character (matches players table).
type Player struct {
	ID          int64          `db:"id" json:"id"`
	SteamID     sql.NullString `db:"steam_id" json:"-"`
	DiscordID   sql.NullString `db:"discord_id" json:"-"`
	Username    string         `db:"username" json:"username"`
	Playtime    int            `db:"playtime" json:"playtime"`
	Kills       int            `db:"kills" json:"kills"`
	Deaths      int            `db:"deaths" json:"deaths"`
	CashMoney   int64          `db:"cash_money" json:"cash_money"`
	BankMoney   int64          `db:"bank_money" json:"bank_money"`
	Donated     float64        `db:"donated" json:"donated"`
	TrustScore  int            `db:"trust_score" json:"trust_score"`
	Notes       string         `db:"notes" json:"notes"`
	Job         string         `db:"job" json:"job"`
	Position    string         `db:"position" json:"position"`
	Online      bool           `db:"online" json:"online"`
	OnlineSince sql.NullTime   `db:"online_since" json:"-"`
	LastSeen    time.Time      `db:"last_seen" json:"last_seen"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Leader is the top player of one leaderboard category.
type Leader struct {
	PlayerID int64   `db:"id" json:"player_id"`
	Username string  `db:"username" json:"username"`
	Value    float64 `db:"value" json:"value"`
}

// Leaderboard holds the top player per category. A category is nil when no
// players exist.
type Leaderboard struct {
	MostHours  *Leader `json:"most_hours"`
	MostKills  *Leader `json:"most_kills"`
	MostDeaths *Leader `json:"most_deaths"`
	Richest    *Leader `json:"richest"`
	TopDonor   *Leader `json:"top_donor"`
}

// Counts are the public player counters.
type Counts struct {
	Total  int `db:"total" json:"total_players"`
	Online int `db:"online" json:"online_players"`
}

// MoneyTransaction is the result of a staff money grant.
type MoneyTransaction struct {
	PlayerID    int64     `json:"player_id"`
	Username    string    `json:"username"`
	Account     Account   `json:"account"`
	Amount      int64     `json:"amount"`
	Balance     int64     `json:"balance"`
	ModeratorID uuid.UUID `json:"moderator_id"`
	CreatedAt   time.Time `json:"created_at"`
}
