package auth

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// contextKeyPrincipal is the Echo context key for the authenticated
// principal. Other plugins read it through GetPrincipal.
const contextKeyPrincipal = "auth_principal"

// GuardConfig configures RequireAuth.
type GuardConfig struct {
	// CookieName is the cookie checked when no bearer header is present.
	CookieName string

	// DetailedErrors exposes which check failed in the 401 message.
	DetailedErrors bool
}

// RequireAuth returns middleware that authenticates the request and
// attaches the principal to the context. The bearer header wins over the
// cookie. Every failure ends the request with 401 before the handler runs.
func RequireAuth(service AuthService, cfg GuardConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c, cfg.CookieName)

			p, err := service.Authenticate(c.Request().Context(), token)
			if err != nil {
				appErr := guardError(err, cfg.DetailedErrors)
				slog.Debug("request not authenticated",
					slog.String("path", c.Path()),
					slog.Any("reason", err),
				)
				return appErr
			}

			c.Set(contextKeyPrincipal, p)
			return next(c)
		}
	}
}

// extractToken reads a "Bearer <token>" Authorization header, falling back
// to the named cookie.
func extractToken(c echo.Context, cookieName string) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}

	if cookieName == "" {
		return ""
	}
	cookie, err := c.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// --- Exported getters for other plugins ---

// GetPrincipal retrieves the authenticated principal from the Echo context.
// Returns nil if RequireAuth did not run on this route.
func GetPrincipal(c echo.Context) *Principal {
	p, ok := c.Get(contextKeyPrincipal).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// RoleSet is an immutable allow-set of roles for one route.
type RoleSet struct {
	roles map[Role]struct{}
}

// NewRoleSet builds an allow-set. Unknown roles are a wiring mistake and
// panic at startup.
func NewRoleSet(roles ...Role) RoleSet {
	set := RoleSet{roles: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		if _, err := ParseRole(string(r)); err != nil {
			panic(fmt.Sprintf("auth.NewRoleSet: %v", err))
		}
		set.roles[r] = struct{}{}
	}
	return set
}

// Allows reports whether r is in the set.
func (s RoleSet) Allows(r Role) bool {
	_, ok := s.roles[r]
	return ok
}

// String lists the roles in a stable order.
func (s RoleSet) String() string {
	names := make([]string, 0, len(s.roles))
	for r := range s.roles {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// RequireRole returns middleware that admits only principals whose role is
// in allowed. It MUST run after RequireAuth; without an attached principal
// the route is misconfigured and the request fails with 500.
func RequireRole(allowed RoleSet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := GetPrincipal(c)
			if p == nil {
				return apperror.NewInternal(fmt.Errorf("RequireRole on %s without RequireAuth", c.Path()))
			}

			if !allowed.Allows(p.Role) {
				return apperror.NewForbidden(
					fmt.Sprintf("you do not have permission to perform this action (requires: %s)", allowed))
			}

			return next(c)
		}
	}
}
