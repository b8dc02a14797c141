package users

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// Handler handles account management HTTP requests.
type Handler struct {
	service UserService
}

// NewHandler creates a new users handler.
func NewHandler(service UserService) *Handler {
	return &Handler{service: service}
}

type userResponse struct {
	Status string  `json:"status"`
	Data   userBox `json:"data"`
}

type userBox struct {
	User *auth.Principal `json:"user"`
}

// GetMe returns the caller's profile (GET /users/me).
func (h *Handler) GetMe(c echo.Context) error {
	p := auth.GetPrincipal(c)
	if p == nil {
		return apperror.NewMissingContext()
	}

	user, err := h.service.Get(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Status: "success", Data: userBox{User: user}})
}

// UpdateMe changes the caller's name or email (PATCH /users/me).
func (h *Handler) UpdateMe(c echo.Context) error {
	p := auth.GetPrincipal(c)
	if p == nil {
		return apperror.NewMissingContext()
	}

	var req UpdateMeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Password != "" || req.PasswordConfirm != "" {
		return apperror.NewFieldValidation(map[string]string{
			"password": "this route is not for password updates; please use /auth/change-password",
		})
	}

	user, err := h.service.UpdateProfile(c.Request().Context(), p.ID, UpdateProfileInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Status: "success", Data: userBox{User: user}})
}

// DeleteMe deactivates the caller's account (DELETE /users/me).
func (h *Handler) DeleteMe(c echo.Context) error {
	p := auth.GetPrincipal(c)
	if p == nil {
		return apperror.NewMissingContext()
	}

	if err := h.service.Deactivate(c.Request().Context(), p.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// List returns a page of active users (GET /users). Admin only.
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))

	result, err := h.service.List(c.Request().Context(), page, perPage)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"results": len(result.Users),
		"data":    result,
	})
}

// SetRole assigns a role to another user (PATCH /users/:id/role). Admin only.
func (h *Handler) SetRole(c echo.Context) error {
	actor := auth.GetPrincipal(c)
	if actor == nil {
		return apperror.NewMissingContext()
	}

	var req SetRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.SetRole(c.Request().Context(), actor.ID, c.Param("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Status: "success", Data: userBox{User: user}})
}
