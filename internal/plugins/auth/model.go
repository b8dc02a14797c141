// Package auth is the credential and access-control core of Wayfarer. It
// stores principals, hashes passwords, issues and verifies bearer tokens,
// guards routes by authentication and role, and runs the signup, login,
// forgot/reset-password and change-password flows.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is a principal's authorization level. The set is closed.
type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role, least privileged first.
var Roles = []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is a stored identity record. Database scanning and JSON
// marshaling use this struct directly; credential material never leaves
// the server.
type Principal struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	PasswordHash           string     `json:"-"` // Never expose in JSON responses.
	Role                   Role       `json:"role"`
	PasswordChangedAt      *time.Time `json:"-"`
	PasswordResetTokenHash *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	Active                 bool       `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
}

// RevokedAt reports whether a credential issued at iat was invalidated by a
// later password change. Both sides are compared at second precision: the
// change timestamp is written one second in the past, which absorbs a token
// minted in the same second as the change.
func (p *Principal) RevokedAt(iat time.Time) bool {
	if p.PasswordChangedAt == nil {
		return false
	}
	return p.PasswordChangedAt.Unix() > iat.Unix()
}

// NormalizeEmail lowercases and trims an identity so that lookups and the
// unique index agree on case-insensitive equality.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// defaultName derives a display name from the identity's local part.
func defaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// PrincipalUpdate is a partial update applied atomically to one principal.
// Nil fields are left unchanged.
type PrincipalUpdate struct {
	Email        *string
	Name         *string
	PasswordHash *string
	Role         *Role
	Active       *bool

	// PasswordChangedAt advances the revocation watermark. The store keeps
	// whichever of the stored and new values is later.
	PasswordChangedAt *time.Time

	// SetResetToken stores a new reset token hash and expiry together.
	SetResetToken *ResetToken

	// ClearResetToken removes both reset token fields.
	ClearResetToken bool

	// IfResetTokenHash makes the update conditional: it applies only while
	// the stored reset token hash still equals this value.
	IfResetTokenHash *string
}

// ResetToken is the stored half of a password reset token.
type ResetToken struct {
	Hash      string
	ExpiresAt time.Time
}

// --- Request DTOs (bound from HTTP requests) ---

// SignupRequest is the body of POST /auth/signup. A client-supplied role is
// accepted for compatibility but never persisted.
type SignupRequest struct {
	Email           string `json:"email" form:"email"`
	Name            string `json:"name" form:"name"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"passwordConfirm" form:"passwordConfirm"`
	Role            string `json:"role" form:"role"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ResetPasswordRequest is the body of PATCH /auth/reset-password/:token.
type ResetPasswordRequest struct {
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"passwordConfirm" form:"passwordConfirm"`
}

// ChangePasswordRequest is the body of PATCH /auth/change-password.
type ChangePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" form:"passwordCurrent"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"passwordConfirm" form:"passwordConfirm"`
}

// --- Service Input DTOs (passed from handler to service) ---

// SignupInput is the input for creating a new principal.
type SignupInput struct {
	Email           string
	Name            string
	Password        string
	PasswordConfirm string
}

// ResetPasswordInput is the input for consuming a reset token.
type ResetPasswordInput struct {
	Token           string
	Password        string
	PasswordConfirm string
}

// ChangePasswordInput is the input for rotating the caller's password.
type ChangePasswordInput struct {
	CurrentPassword string
	Password        string
	PasswordConfirm string
}

// Result is what a successful credential-issuing flow returns.
type Result struct {
	Token     string
	Principal *Principal
}
