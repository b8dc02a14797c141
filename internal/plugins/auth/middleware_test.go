package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

func TestRequireAuth_Failures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	valid := h.signup(t, "ada@example.com", "password1")
	gone := h.signup(t, "bob@example.com", "password1")
	inactive := false
	_, err := h.store.Update(ctx, gone.Principal.ID, auth.PrincipalUpdate{Active: &inactive})
	require.NoError(t, err)

	foreign, err := auth.NewJWTService("some-other-secret-also-32-bytes-long", time.Hour, h.clock.Now)
	require.NoError(t, err)
	forged, err := foreign.Issue(valid.Principal.ID)
	require.NoError(t, err)

	e := newTestServer(t, h)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"missing", "", "you are not logged in; please log in to get access"},
		{"garbage", "not-a-token", "invalid or expired credential; please log in again"},
		{"forged", forged, "invalid or expired credential; please log in again"},
		{"principal gone", gone.Token, "the user belonging to this credential no longer exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodGet, "/probe/me", "", tt.token)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["message"])
		})
	}
}

func TestRequireAuth_RevokedAfterPasswordChange(t *testing.T) {
	h := newHarness(t)
	res := h.signup(t, "ada@example.com", "password1")
	e := newTestServer(t, h)

	h.clock.Advance(2 * time.Second)
	_, err := h.svc.ChangePassword(context.Background(), res.Principal, auth.ChangePasswordInput{
		CurrentPassword: "password1", Password: "password2", PasswordConfirm: "password2",
	})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodGet, "/probe/me", "", res.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "credential revoked by password change; please log in again", decode(t, rec)["message"])
}

func TestRequireAuth_UniformMessageByDefault(t *testing.T) {
	h := newHarness(t)
	e := echo.New()
	e.HTTPErrorHandler = testErrorHandler
	e.GET("/probe", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		auth.RequireAuth(h.svc, auth.GuardConfig{CookieName: testCookie}))

	for _, token := range []string{"", "not-a-token"} {
		rec := doJSON(e, http.MethodGet, "/probe", "", token)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "authentication required", decode(t, rec)["message"])
	}
}

func TestRequireAuth_AttachesPrincipal(t *testing.T) {
	h := newHarness(t)
	res := h.signup(t, "ada@example.com", "password1")
	e := newTestServer(t, h)

	rec := doJSON(e, http.MethodGet, "/probe/me", "", res.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, res.Principal.ID, decode(t, rec)["id"])
}

func TestRequireAuth_CookieFallback(t *testing.T) {
	h := newHarness(t)
	res := h.signup(t, "ada@example.com", "password1")
	e := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodGet, "/probe/me", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: res.Token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_BearerWinsOverCookie(t *testing.T) {
	h := newHarness(t)
	ada := h.signup(t, "ada@example.com", "password1")
	bob := h.signup(t, "bob@example.com", "password1")
	e := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodGet, "/probe/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "bearer "+bob.Token)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: ada.Token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bob.Principal.ID, decode(t, rec)["id"])
}

func TestRequireRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.signup(t, "ada@example.com", "password1")
	admin := h.signup(t, "root@example.com", "password1")
	role := auth.RoleAdmin
	_, err := h.store.Update(ctx, admin.Principal.ID, auth.PrincipalUpdate{Role: &role})
	require.NoError(t, err)

	e := newTestServer(t, h)

	rec := doJSON(e, http.MethodGet, "/probe/admin", "", user.Token)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you do not have permission to perform this action (requires: admin, lead-guide)",
		decode(t, rec)["message"])

	rec = doJSON(e, http.MethodGet, "/probe/admin", "", admin.Token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/probe/admin", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "authentication is checked before the role")
}

func TestRequireRole_WithoutRequireAuth(t *testing.T) {
	h := newHarness(t)
	e := newTestServer(t, h)

	rec := doJSON(e, http.MethodGet, "/probe/misconfigured", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewRoleSet_UnknownRolePanics(t *testing.T) {
	assert.Panics(t, func() { auth.NewRoleSet(auth.Role("superuser")) })
	assert.NotPanics(t, func() { auth.NewRoleSet(auth.Roles...) })
}
