package department

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// MemberLister lists dashboard users holding a label.
type MemberLister interface {
	ListByRole(ctx context.Context, label string) ([]*identity.Record, error)
}

// Auditor records privileged changes.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action, targetType, targetID string, details any)
}

// Service handles department business logic
type Service struct {
	repo    Repository
	members MemberLister
	audit   Auditor
}

// NewService creates department service
func NewService(repo Repository, members MemberLister, auditor Auditor) *Service {
	return &Service{repo: repo, members: members, audit: auditor}
}

// Overview returns every department with its roster and documents. The
// viewer's permissions per department are included for the frontend.
func (s *Service) Overview(ctx context.Context, viewer *identity.Record) ([]DepartmentResponse, error) {
	command, err := s.repo.ListCommand(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	byDept := make(map[string]*DepartmentResponse)
	out := make([]DepartmentResponse, 0, len(roles.Departments()))
	for _, d := range roles.Departments() {
		resp := DepartmentResponse{
			ID:           string(d),
			Name:         d.Name(),
			Subdivisions: d.Subdivisions(),
			Command:      []*CommandMember{},
			Documents:    []*Document{},
		}
		if viewer != nil {
			held, banned := viewer.RoleSet(), viewer.IsBanned()
			resp.CanEdit = roles.AllowDepartmentEdit(held, banned, d) == nil
			resp.CanView = roles.AllowDepartmentView(held, banned, d) == nil
		}
		out = append(out, resp)
	}
	for i := range out {
		byDept[out[i].ID] = &out[i]
	}

	for _, m := range command {
		if resp, ok := byDept[m.Department]; ok {
			resp.Command = append(resp.Command, m)
		}
	}
	for _, doc := range docs {
		if resp, ok := byDept[doc.Department]; ok {
			resp.Documents = append(resp.Documents, doc)
		}
	}
	return out, nil
}

// Members lists users holding the department's command or member label,
// command first. A user holding both appears once.
func (s *Service) Members(ctx context.Context, dept roles.Department) ([]MemberResponse, error) {
	commanders, err := s.members.ListByRole(ctx, string(dept.CommandLabel()))
	if err != nil {
		return nil, err
	}
	members, err := s.members.ListByRole(ctx, string(dept.MemberLabel()))
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(commanders))
	out := make([]MemberResponse, 0, len(commanders)+len(members))
	for _, rec := range commanders {
		seen[rec.ID] = true
		out = append(out, newMemberResponse(identity.NewView(rec), true))
	}
	for _, rec := range members {
		if seen[rec.ID] {
			continue
		}
		out = append(out, newMemberResponse(identity.NewView(rec), false))
	}
	return out, nil
}

// AddCommand appends a member to the department's command roster.
func (s *Service) AddCommand(ctx context.Context, actorID uuid.UUID, dept roles.Department, req *AddCommandRequest) (*CommandMember, error) {
	m := &CommandMember{
		Department: string(dept),
		Name:       req.Name,
		Rank:       req.Rank,
		DiscordTag: req.DiscordTag,
	}
	if err := s.repo.AddCommand(ctx, m); err != nil {
		return nil, err
	}

	log.Info().Str("department", string(dept)).Int64("command_id", m.ID).Msg("command member added")
	s.audit.Record(ctx, actorID, audit.ActionCommandAdded, "department", string(dept), m)
	return m, nil
}

// RemoveCommand deletes a roster entry of the department.
func (s *Service) RemoveCommand(ctx context.Context, actorID uuid.UUID, dept roles.Department, id int64) error {
	if err := s.repo.RemoveCommand(ctx, string(dept), id); err != nil {
		return err
	}

	log.Info().Str("department", string(dept)).Int64("command_id", id).Msg("command member removed")
	s.audit.Record(ctx, actorID, audit.ActionCommandRemoved, "department", string(dept),
		map[string]string{"command_id": strconv.FormatInt(id, 10)})
	return nil
}

// UpdateDocument replaces a document's title and content.
func (s *Service) UpdateDocument(ctx context.Context, actorID uuid.UUID, dept roles.Department, id int64, req *UpdateDocumentRequest) (*Document, error) {
	doc, err := s.repo.UpdateDocument(ctx, string(dept), id, req.Title, req.Content, actorID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, audit.ActionDocumentUpdated, "department", string(dept),
		map[string]any{"document_id": id, "title": doc.Title})
	return doc, nil
}
