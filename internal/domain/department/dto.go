package department

import (
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
)

// AddCommandRequest for POST /api/departments/{dept}/command
type AddCommandRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Rank       string `json:"rank" validate:"required,min=2,max=100"`
	DiscordTag string `json:"discord_tag" validate:"omitempty,max=100"`
}

// UpdateDocumentRequest for PUT /api/departments/{dept}/documents/{docID}
type UpdateDocumentRequest struct {
	Title   string `json:"title" validate:"required,min=2,max=200"`
	Content string `json:"content" validate:"max=20000"`
}

// DepartmentResponse is one department with its roster and documents.
type DepartmentResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Subdivisions []string         `json:"subdivisions"`
	Command      []*CommandMember `json:"command"`
	Documents    []*Document      `json:"documents"`
	CanEdit      bool             `json:"can_edit"`
	CanView      bool             `json:"can_view"`
}

// MemberResponse is a dashboard user holding the department's labels.
type MemberResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	PrimaryRole string `json:"primary_role"`
	IsCommand   bool   `json:"is_command"`
}

func newMemberResponse(v identity.View, command bool) MemberResponse {
	return MemberResponse{
		ID:          v.ID.String(),
		DisplayName: v.DisplayName,
		AvatarURL:   v.AvatarURL,
		PrimaryRole: v.PrimaryRole,
		IsCommand:   command,
	}
}
