package player

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventMoneyAdded is the live feed event for a money grant.
const EventMoneyAdded = "money_added"

// Publisher forwards staff actions to the live feed.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// Service handles player business logic
type Service struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
}

// NewService creates player service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetPublisher attaches the live feed.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// ListOnline returns the players currently on the server.
func (s *Service) ListOnline(ctx context.Context) ([]*Player, error) {
	return s.repo.ListOnline(ctx)
}

// Get returns one player.
func (s *Service) Get(ctx context.Context, id int64) (*Player, error) {
	return s.repo.GetByID(ctx, id)
}

// Leaderboard returns the top player of each category.
func (s *Service) Leaderboard(ctx context.Context) (*Leaderboard, error) {
	return s.repo.Leaderboard(ctx)
}

// Counts returns the public player counters.
func (s *Service) Counts(ctx context.Context) (*Counts, error) {
	return s.repo.Counts(ctx)
}

// AddMoney credits a player's cash or bank account.
func (s *Service) AddMoney(ctx context.Context, moderatorID uuid.UUID, req *AddMoneyRequest) (*MoneyTransaction, error) {
	account := Account(req.Account)
	if !account.Valid() {
		return nil, ErrInvalidAccount
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	reason := fmt.Sprintf("Added $%d to %s", req.Amount, account)
	p, err := s.repo.AddMoney(ctx, req.PlayerID, account, req.Amount, moderatorID, reason)
	if err != nil {
		return nil, err
	}

	tx := &MoneyTransaction{
		PlayerID:    p.ID,
		Username:    p.Username,
		Account:     account,
		Amount:      req.Amount,
		Balance:     p.CashMoney,
		ModeratorID: moderatorID,
		CreatedAt:   s.now(),
	}
	if account == AccountBank {
		tx.Balance = p.BankMoney
	}

	log.Info().
		Int64("player_id", p.ID).
		Str("moderator_id", moderatorID.String()).
		Str("account", string(account)).
		Int64("amount", req.Amount).
		Msg("money added")

	if s.publisher != nil {
		s.publisher.Publish(ctx, EventMoneyAdded, tx)
	}
	return tx, nil
}
