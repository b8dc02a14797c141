package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the credential routes under /auth. Signup, login
// and the reset flow are public; throttle wraps them to slow down credential
// stuffing. guard is RequireAuth, exported separately for other plugins.
func RegisterRoutes(e *echo.Echo, h *Handler, guard, throttle echo.MiddlewareFunc) {
	g := e.Group("/auth")

	// Public routes -- no auth required.
	g.POST("/signup", h.Signup, throttle)
	g.POST("/login", h.Login, throttle)
	g.POST("/logout", h.Logout)
	g.POST("/forgot-password", h.ForgotPassword, throttle)
	g.PATCH("/reset-password/:token", h.ResetPassword, throttle)

	// The caller must already hold a valid credential.
	g.PATCH("/change-password", h.ChangePassword, guard)
}
