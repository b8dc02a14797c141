package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// CookieConfig controls the credential cookie set alongside every issued
// token.
type CookieConfig struct {
	Name string
	TTL  time.Duration
	Now  func() time.Time
}

// Handler handles HTTP requests for the credential lifecycle. Handlers are
// thin: they bind the request, call the service, and write the response.
// No business logic lives here.
type Handler struct {
	service AuthService
	cookie  CookieConfig
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService, cookie CookieConfig) *Handler {
	if cookie.Now == nil {
		cookie.Now = time.Now
	}
	return &Handler{service: service, cookie: cookie}
}

// credentialResponse is the body returned with every issued credential.
type credentialResponse struct {
	Status string       `json:"status"`
	Token  string       `json:"token"`
	Data   principalBox `json:"data"`
}

type principalBox struct {
	User *Principal `json:"user"`
}

// Signup creates an account and logs it in (POST /auth/signup).
func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	res, err := h.service.Signup(c.Request().Context(), SignupInput{
		Email:           req.Email,
		Name:            req.Name,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}

	return h.sendCredential(c, http.StatusCreated, res)
}

// Login authenticates by email and password (POST /auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	res, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return h.sendCredential(c, http.StatusOK, res)
}

// Logout clears the credential cookie (POST /auth/logout). Tokens are
// stateless, so a bearer token stays valid until it expires.
func (h *Handler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

// ForgotPassword mails a reset link (POST /auth/forgot-password).
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	if err := h.service.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "token sent to email",
	})
}

// ResetPassword consumes a reset token (PATCH /auth/reset-password/:token).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	res, err := h.service.ResetPassword(c.Request().Context(), ResetPasswordInput{
		Token:           c.Param("token"),
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}

	return h.sendCredential(c, http.StatusOK, res)
}

// ChangePassword rotates the caller's password (PATCH /auth/change-password).
func (h *Handler) ChangePassword(c echo.Context) error {
	p := GetPrincipal(c)
	if p == nil {
		return apperror.NewMissingContext()
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	res, err := h.service.ChangePassword(c.Request().Context(), p, ChangePasswordInput{
		CurrentPassword: req.PasswordCurrent,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}

	return h.sendCredential(c, http.StatusOK, res)
}

// sendCredential sets the cookie and writes the token and principal.
func (h *Handler) sendCredential(c echo.Context, status int, res *Result) error {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    res.Token,
		Path:     "/",
		Expires:  h.cookie.Now().Add(h.cookie.TTL),
		MaxAge:   int(h.cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   isSecure(c),
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(status, credentialResponse{
		Status: "success",
		Token:  res.Token,
		Data:   principalBox{User: res.Principal},
	})
}

// isSecure reports whether the request arrived over TLS, directly or via a
// proxy that says so. The app strips forwarding headers from peers outside
// its trusted proxy list before they get here.
func isSecure(c echo.Context) bool {
	return c.Scheme() == "https"
}
