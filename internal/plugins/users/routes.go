package users

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// RegisterRoutes sets up the /users routes. Every route needs a credential;
// listing and role assignment additionally need the admin role.
func RegisterRoutes(e *echo.Echo, h *Handler, guard echo.MiddlewareFunc) {
	g := e.Group("/users", guard)

	g.GET("/me", h.GetMe)
	g.PATCH("/me", h.UpdateMe)
	g.DELETE("/me", h.DeleteMe)

	admin := auth.RequireRole(auth.NewRoleSet(auth.RoleAdmin))
	g.GET("", h.List, admin)
	g.PATCH("/:id/role", h.SetRole, admin)
}
