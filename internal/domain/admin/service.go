package admin

import (
	"context"

	"github.com/google/uuid"

	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Auditor records privileged changes.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action, targetType, targetID string, details any)
	List(ctx context.Context, filter audit.Filter) ([]*audit.Entry, int, error)
}

// Service handles user administration. Every write goes through the
// reconciliation engine so admin edits and sync share one update path.
type Service struct {
	repo   Repository
	engine *identity.Engine
	audit  Auditor
}

// NewService creates admin service
func NewService(repo Repository, engine *identity.Engine, auditor Auditor) *Service {
	return &Service{repo: repo, engine: engine, audit: auditor}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) (*UserListResponse, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Role != "" {
		label, err := roles.ParseLabel(filter.Role)
		if err != nil {
			return nil, err
		}
		filter.Role = string(label)
	}
	if filter.Status != "" && !identity.Status(filter.Status).Valid() {
		return nil, identity.ErrInvalidStatus
	}

	recs, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &UserListResponse{Users: identity.NewViews(recs), Total: total}, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*identity.View, error) {
	rec, err := s.engine.Store().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, identity.ErrNotFound
	}
	v := identity.NewView(rec)
	return &v, nil
}

// SetRoles replaces a user's roles.
func (s *Service) SetRoles(ctx context.Context, actorID, id uuid.UUID, labels []string) (*identity.View, error) {
	res, err := s.engine.SetRoles(ctx, id, labels)
	if err != nil {
		return nil, err
	}

	v := identity.NewView(res.Record)
	if res.Changed {
		s.audit.Record(ctx, actorID, audit.ActionRolesSet, "user", id.String(), map[string]any{"roles": v.Roles})
	}
	return &v, nil
}

// SetStatus bans or reactivates a user. Users cannot ban themselves.
func (s *Service) SetStatus(ctx context.Context, actorID, id uuid.UUID, status identity.Status) (*identity.View, error) {
	if id == actorID {
		return nil, identity.ErrSelfAction
	}

	res, err := s.engine.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	v := identity.NewView(res.Record)
	if res.Changed {
		s.audit.Record(ctx, actorID, audit.ActionStatusSet, "user", id.String(), map[string]string{"status": string(status)})
	}
	return &v, nil
}

// DeleteUser removes a user.
func (s *Service) DeleteUser(ctx context.Context, actorID, id uuid.UUID) error {
	if err := s.engine.Delete(ctx, id, actorID); err != nil {
		return err
	}
	s.audit.Record(ctx, actorID, audit.ActionUserDeleted, "user", id.String(), nil)
	return nil
}

// AuditLog returns audit entries newest first.
func (s *Service) AuditLog(ctx context.Context, filter audit.Filter) ([]*audit.Entry, int, error) {
	return s.audit.List(ctx, filter)
}
