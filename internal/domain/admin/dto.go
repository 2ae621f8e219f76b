package admin

import (
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
)

// SetRolesRequest for PUT /api/admin/users/{id}/roles
type SetRolesRequest struct {
	Roles []string `json:"roles" validate:"required,dive,min=1"`
}

// SetStatusRequest for PUT /api/admin/users/{id}/status
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active banned"`
}

// UserFilter narrows GET /api/admin/users.
type UserFilter struct {
	Role   string
	Status string
	Search string
	Limit  int
	Offset int
}

// UserListResponse is one page of users.
type UserListResponse struct {
	Users []identity.View `json:"users"`
	Total int             `json:"total"`
}

// RolesResponse lists the assignable role vocabulary.
type RolesResponse struct {
	Roles []string `json:"roles"`
}
