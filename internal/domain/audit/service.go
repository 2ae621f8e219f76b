package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service records and lists audit entries.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates audit service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record stores an entry. Failures are logged and never fail the audited
// operation.
func (s *Service) Record(ctx context.Context, actorID uuid.UUID, action, targetType, targetID string, details any) {
	e := &Entry{
		ID:         uuid.New(),
		ActorID:    uuid.NullUUID{UUID: actorID, Valid: actorID != uuid.Nil},
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  s.now(),
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			log.Warn().Err(err).Str("action", action).Msg("Failed to encode audit details")
		} else {
			e.Details = raw
		}
	}

	// the audited change is already committed
	if err := s.repo.Create(context.WithoutCancel(ctx), e); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("target_type", targetType).
			Str("target_id", targetID).
			Msg("Failed to write audit log")
	}
}

// List returns entries newest first with the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}
