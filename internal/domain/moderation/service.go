package moderation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// EventModeration is the live feed event for warn, kick, ban and unban.
const EventModeration = "moderation"

const (
	historyLimit    = 50
	recentLimit     = 10
	topOffenderRows = 5
)

// Publisher forwards staff actions to the live feed.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// Service handles moderation business logic
type Service struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
}

// NewService creates moderation service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetPublisher attaches the live feed.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Warn records a warning against a player.
func (s *Service) Warn(ctx context.Context, moderatorID uuid.UUID, req *ActionRequest) (*LogEntry, error) {
	return s.record(ctx, moderatorID, ActionWarn, req)
}

// Kick records a kick and marks the player offline.
func (s *Service) Kick(ctx context.Context, moderatorID uuid.UUID, req *ActionRequest) (*LogEntry, error) {
	return s.record(ctx, moderatorID, ActionKick, req)
}

func (s *Service) record(ctx context.Context, moderatorID uuid.UUID, action Action, req *ActionRequest) (*LogEntry, error) {
	entry, err := s.repo.Record(ctx, req.PlayerID, moderatorID, action, req.Reason)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("player_id", req.PlayerID).
		Str("moderator_id", moderatorID.String()).
		Str("action", string(action)).
		Msg("moderation action")

	s.publish(ctx, entry)
	return entry, nil
}

// Ban bans a player. A player holds at most one active ban.
func (s *Service) Ban(ctx context.Context, moderatorID uuid.UUID, req *BanRequest) (*Ban, error) {
	d, err := ParseBanDuration(req.Duration)
	if err != nil {
		return nil, err
	}

	ban, err := s.repo.CreateBan(ctx, req.PlayerID, moderatorID, req.Reason, d, s.now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("player_id", req.PlayerID).
		Str("moderator_id", moderatorID.String()).
		Str("duration", d.Text).
		Msg("player banned")

	s.publish(ctx, &LogEntry{
		PlayerID:    ban.PlayerID,
		PlayerName:  ban.PlayerName,
		ModeratorID: ban.ModeratorID,
		Action:      ActionBan,
		Reason:      ban.Reason,
		CreatedAt:   ban.CreatedAt,
	})
	return ban, nil
}

// Unban lifts the player's active ban.
func (s *Service) Unban(ctx context.Context, moderatorID uuid.UUID, req *ActionRequest) (*LogEntry, error) {
	entry, err := s.repo.LiftBan(ctx, req.PlayerID, moderatorID, req.Reason, s.now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("player_id", req.PlayerID).
		Str("moderator_id", moderatorID.String()).
		Msg("ban lifted")

	s.publish(ctx, entry)
	return entry, nil
}

// History returns the latest log entries, optionally for one player.
func (s *Service) History(ctx context.Context, playerID *int64) ([]*LogEntry, error) {
	return s.repo.History(ctx, playerID, historyLimit)
}

// ActiveBans returns bans that have not expired or been lifted.
func (s *Service) ActiveBans(ctx context.Context) ([]*Ban, error) {
	return s.repo.ListActiveBans(ctx, s.now())
}

// StaffStats returns account counters and the top offenders.
func (s *Service) StaffStats(ctx context.Context) (*StaffStats, error) {
	return s.repo.StaffStats(ctx, roles.NewSet(roles.Staff, roles.Director).Strings(), topOffenderRows)
}

// RecentActions returns the latest bans, kicks and warnings.
func (s *Service) RecentActions(ctx context.Context) (*RecentActions, error) {
	var out RecentActions
	var err error
	if out.Bans, err = s.repo.Recent(ctx, ActionBan, recentLimit); err != nil {
		return nil, err
	}
	if out.Kicks, err = s.repo.Recent(ctx, ActionKick, recentLimit); err != nil {
		return nil, err
	}
	if out.Warns, err = s.repo.Recent(ctx, ActionWarn, recentLimit); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) publish(ctx context.Context, entry *LogEntry) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, EventModeration, newLogEntryResponse(entry))
	}
}
