// Package users manages principals once they exist: the caller's own
// profile and account, plus admin listing and role assignment. Credentials
// stay in the auth plugin; this plugin never touches passwords.
package users

import (
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// Default and maximum page sizes for the admin listing.
const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// UpdateProfileInput holds the fields a principal may change about itself.
// Nil fields are left unchanged.
type UpdateProfileInput struct {
	Name  *string
	Email *string
}

// Page is one page of the admin user listing.
type Page struct {
	Users   []auth.Principal `json:"users"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// --- Request DTOs ---

// UpdateMeRequest is the PATCH /users/me body. Password fields are bound
// only so the handler can reject them.
type UpdateMeRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"passwordConfirm"`
}

// SetRoleRequest is the PATCH /users/:id/role body.
type SetRoleRequest struct {
	Role string `json:"role"`
}
