package player

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines player data access
type Repository interface {
	ListOnline(ctx context.Context) ([]*Player, error)
	GetByID(ctx context.Context, id int64) (*Player, error)
	Leaderboard(ctx context.Context) (*Leaderboard, error)
	Counts(ctx context.Context) (*Counts, error)
	// AddMoney credits the account and writes the money_added log entry in
	// one transaction. It returns the updated player.
	AddMoney(ctx context.Context, id int64, account Account, amount int64, moderatorID uuid.UUID, reason string) (*Player, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates player repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListOnline(ctx context.Context) ([]*Player, error) {
	players := []*Player{}
	err := r.db.SelectContext(ctx, &players, `
		SELECT * FROM players
		WHERE online
		ORDER BY online_since NULLS LAST, username
	`)
	return players, err
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Player, error) {
	var p Player
	err := r.db.GetContext(ctx, &p, `SELECT * FROM players WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// leaderboardColumns are fixed expressions, never user input.
var leaderboardColumns = []struct {
	expr string
	set  func(*Leaderboard, *Leader)
}{
	{"playtime", func(l *Leaderboard, v *Leader) { l.MostHours = v }},
	{"kills", func(l *Leaderboard, v *Leader) { l.MostKills = v }},
	{"deaths", func(l *Leaderboard, v *Leader) { l.MostDeaths = v }},
	{"cash_money + bank_money", func(l *Leaderboard, v *Leader) { l.Richest = v }},
	{"donated", func(l *Leaderboard, v *Leader) { l.TopDonor = v }},
}

func (r *repository) Leaderboard(ctx context.Context) (*Leaderboard, error) {
	board := &Leaderboard{}
	for _, col := range leaderboardColumns {
		var leader Leader
		query := fmt.Sprintf(`
			SELECT id, username, (%[1]s)::float8 AS value
			FROM players
			ORDER BY %[1]s DESC, id
			LIMIT 1`, col.expr)
		err := r.db.GetContext(ctx, &leader, query)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		col.set(board, &leader)
	}
	return board, nil
}

func (r *repository) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := r.db.GetContext(ctx, &c, `
		SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE online) AS online
		FROM players
	`)
	return &c, err
}

func (r *repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *repository) lockPlayer(ctx context.Context, tx *sqlx.Tx, id int64) error {
	var locked int64
	err := tx.GetContext(ctx, &locked, `SELECT id FROM players WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPlayerNotFound
	}
	return err
}

func (r *repository) AddMoney(ctx context.Context, id int64, account Account, amount int64, moderatorID uuid.UUID, reason string) (*Player, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := r.lockPlayer(ctx, tx, id); err != nil {
		return nil, err
	}

	col := account.column()
	var p Player
	err = tx.GetContext(ctx, &p, fmt.Sprintf(`
		UPDATE players SET %[1]s = %[1]s + $1
		WHERE id = $2
		RETURNING *`, col), amount, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO moderation_logs (player_id, moderator_id, action, reason)
		VALUES ($1, $2, 'money_added', $3)
	`, id, uuid.NullUUID{UUID: moderatorID, Valid: moderatorID != uuid.Nil}, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}
