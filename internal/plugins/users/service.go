package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/sanitize"
)

// UserService defines the business logic contract for account management.
type UserService interface {
	Get(ctx context.Context, id string) (*auth.Principal, error)
	UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*auth.Principal, error)
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, page, perPage int) (*Page, error)

	// SetRole assigns role to target on behalf of actor. Admins cannot
	// change their own role, so the last admin cannot lock everyone out.
	SetRole(ctx context.Context, actorID, targetID string, role string) (*auth.Principal, error)

	// SetRoleByEmail assigns a role without an acting principal. Used by
	// the operator CLI to bootstrap the first admin.
	SetRoleByEmail(ctx context.Context, email, role string) (*auth.Principal, error)
}

type userService struct {
	repo auth.PrincipalRepository
}

// NewUserService creates a user service backed by the principal store.
func NewUserService(repo auth.PrincipalRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) Get(ctx context.Context, id string) (*auth.Principal, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStore(err, "finding user")
	}
	return p, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*auth.Principal, error) {
	var u auth.PrincipalUpdate
	fields := map[string]string{}

	if input.Name != nil {
		name := sanitize.PlainText(*input.Name)
		if name == "" {
			fields["name"] = "name cannot be empty"
		} else if msg := auth.ValidateName(name); msg != "" {
			fields["name"] = msg
		}
		u.Name = &name
	}
	if input.Email != nil {
		email := auth.NormalizeEmail(*input.Email)
		if msg := auth.ValidateEmail(email); msg != "" {
			fields["email"] = msg
		}
		u.Email = &email
	}
	if len(fields) > 0 {
		return nil, apperror.NewFieldValidation(fields)
	}

	if u.Name == nil && u.Email == nil {
		return s.Get(ctx, id)
	}

	p, err := s.repo.Update(ctx, id, u)
	if err != nil {
		return nil, wrapStore(err, "updating profile")
	}

	slog.Info("profile updated", slog.String("user_id", id))
	return p, nil
}

// Deactivate soft-deletes the account. The record stays for audit, but
// lookups and guards treat it as gone from here on.
func (s *userService) Deactivate(ctx context.Context, id string) error {
	inactive := false
	if _, err := s.repo.Update(ctx, id, auth.PrincipalUpdate{Active: &inactive}); err != nil {
		return wrapStore(err, "deactivating user")
	}

	slog.Info("user deactivated", slog.String("user_id", id))
	return nil
}

func (s *userService) List(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	perPage = min(perPage, maxPerPage)

	users, total, err := s.repo.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, wrapStore(err, "listing users")
	}
	if users == nil {
		users = []auth.Principal{}
	}
	return &Page{Users: users, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *userService) SetRole(ctx context.Context, actorID, targetID string, role string) (*auth.Principal, error) {
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	if actorID == targetID {
		return nil, apperror.NewBadRequest("cannot change your own role")
	}

	p, err := s.repo.Update(ctx, targetID, auth.PrincipalUpdate{Role: &r})
	if err != nil {
		return nil, wrapStore(err, "setting role")
	}

	slog.Info("role changed",
		slog.String("target_user", targetID),
		slog.String("role", string(r)),
		slog.String("by", actorID),
	)
	return p, nil
}

func (s *userService) SetRoleByEmail(ctx context.Context, email, role string) (*auth.Principal, error) {
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return nil, wrapStore(err, "finding user")
	}

	p, err = s.repo.Update(ctx, p.ID, auth.PrincipalUpdate{Role: &r})
	if err != nil {
		return nil, wrapStore(err, "setting role")
	}

	slog.Info("role changed",
		slog.String("target_user", p.ID),
		slog.String("role", string(r)),
		slog.String("by", "cli"),
	)
	return p, nil
}

func parseRole(role string) (auth.Role, error) {
	r, err := auth.ParseRole(role)
	if err != nil {
		names := make([]string, len(auth.Roles))
		for i, known := range auth.Roles {
			names[i] = string(known)
		}
		return "", apperror.NewFieldValidation(map[string]string{
			"role": "role must be one of: " + strings.Join(names, ", "),
		})
	}
	return r, nil
}

// wrapStore passes client-facing store errors through and hides the rest.
func wrapStore(err error, op string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}
