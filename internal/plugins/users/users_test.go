package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth/authtest"
)

type fixture struct {
	store *authtest.Store
	clock *authtest.Clock
	auth  auth.AuthService
	users UserService
	e     *echo.Echo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: authtest.NewStore(),
		clock: authtest.NewClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)),
	}

	tokens, err := auth.NewJWTService("users-test-secret-with-enough-bytes", time.Hour, f.clock.Now)
	require.NoError(t, err)
	f.auth = auth.NewAuthService(f.store, authtest.Hasher{}, tokens, &authtest.Notifier{}, auth.ServiceConfig{
		Now: f.clock.Now,
	})
	f.users = NewUserService(f.store)

	f.e = echo.New()
	f.e.HTTPErrorHandler = func(err error, c echo.Context) {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			appErr = apperror.NewInternal(err)
		}
		_ = c.JSON(appErr.Code, appErr)
	}
	RegisterRoutes(f.e, NewHandler(f.users), auth.RequireAuth(f.auth, auth.GuardConfig{DetailedErrors: true}))
	return f
}

// signup registers a principal and optionally promotes it.
func (f *fixture) signup(t *testing.T, email string, role auth.Role) *auth.Result {
	t.Helper()
	res, err := f.auth.Signup(context.Background(), auth.SignupInput{
		Email: email, Password: "password1", PasswordConfirm: "password1",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	if role != auth.RoleUser {
		_, err := f.store.Update(context.Background(), res.Principal.ID, auth.PrincipalUpdate{Role: &role})
		require.NoError(t, err)
	}
	return res
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestGetMe(t *testing.T) {
	f := newFixture(t)
	ada := f.signup(t, "ada@example.com", auth.RoleUser)

	rec := f.do(http.MethodGet, "/users/me", "", ada.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	user := decode(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = f.do(http.MethodGet, "/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateMe(t *testing.T) {
	f := newFixture(t)
	ada := f.signup(t, "ada@example.com", auth.RoleUser)

	rec := f.do(http.MethodPatch, "/users/me", `{"name":"Ada L.","email":"ADA.L@example.com","role":"admin"}`, ada.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, _ := f.store.Get(ada.Principal.ID)
	assert.Equal(t, "Ada L.", stored.Name)
	assert.Equal(t, "ada.l@example.com", stored.Email)
	assert.Equal(t, auth.RoleUser, stored.Role, "role is not a profile field")
}

func TestUpdateMe_RejectsPasswordFields(t *testing.T) {
	f := newFixture(t)
	ada := f.signup(t, "ada@example.com", auth.RoleUser)

	rec := f.do(http.MethodPatch, "/users/me", `{"password":"password2","passwordConfirm":"password2"}`, ada.Token)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Contains(t, body["fields"].(map[string]any)["password"], "not for password updates")
}

func TestUpdateMe_EmailTaken(t *testing.T) {
	f := newFixture(t)
	ada := f.signup(t, "ada@example.com", auth.RoleUser)
	f.signup(t, "bob@example.com", auth.RoleUser)

	rec := f.do(http.MethodPatch, "/users/me", `{"email":"bob@example.com"}`, ada.Token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateProfile_Validation(t *testing.T) {
	f := newFixture(t)
	ada := f.signup(t, "ada@example.com", auth.RoleUser)

	empty, bad := "  ", "nope"
	_, err := f.users.UpdateProfile(context.Background(), ada.Principal.ID, UpdateProfileInput{Name: &empty, Email: &bad})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Code)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "email")
}

func TestDeleteMe(t *testing.T) {
	f := newFixture(t)
	ada := f.signup(t, "ada@example.com", auth.RoleUser)

	rec := f.do(http.MethodDelete, "/users/me", "", ada.Token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, ok := f.store.Get(ada.Principal.ID)
	require.True(t, ok, "soft delete keeps the record")
	assert.False(t, stored.Active)

	rec = f.do(http.MethodGet, "/users/me", "", ada.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := f.auth.Login(context.Background(), "ada@example.com", "password1")
	assert.Equal(t, http.StatusUnauthorized, apperror.SafeCode(err))
}

func TestList_AdminOnly(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "ada@example.com", auth.RoleUser)
	admin := f.signup(t, "root@example.com", auth.RoleAdmin)
	f.signup(t, "guide@example.com", auth.RoleGuide)

	rec := f.do(http.MethodGet, "/users", "", user.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/users?page=1&per_page=2", "", admin.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.EqualValues(t, 2, body["results"])
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 3, data["total"])
	users := data["users"].([]any)
	assert.Equal(t, "guide@example.com", users[0].(map[string]any)["email"], "newest first")
}

func TestList_Paging(t *testing.T) {
	f := newFixture(t)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		f.signup(t, email, auth.RoleUser)
	}

	page, err := f.users.List(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Users, 1)
	assert.Equal(t, 3, page.Total)

	page, err = f.users.List(context.Background(), 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Users)
	assert.NotNil(t, page.Users)

	page, err = f.users.List(context.Background(), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPerPage, page.PerPage)
}

func TestSetRole(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "ada@example.com", auth.RoleUser)
	admin := f.signup(t, "root@example.com", auth.RoleAdmin)

	rec := f.do(http.MethodPatch, "/users/"+user.Principal.ID+"/role", `{"role":"guide"}`, user.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code, "users cannot elevate themselves")

	rec = f.do(http.MethodPatch, "/users/"+user.Principal.ID+"/role", `{"role":"lead-guide"}`, admin.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, _ := f.store.Get(user.Principal.ID)
	assert.Equal(t, auth.RoleLeadGuide, stored.Role)

	rec = f.do(http.MethodPatch, "/users/"+user.Principal.ID+"/role", `{"role":"overlord"}`, admin.Token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPatch, "/users/"+admin.Principal.ID+"/role", `{"role":"user"}`, admin.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPatch, "/users/missing/role", `{"role":"guide"}`, admin.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetRoleByEmail(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ada@example.com", auth.RoleUser)

	p, err := f.users.SetRoleByEmail(context.Background(), "ADA@example.com", "admin")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, p.Role)

	_, err = f.users.SetRoleByEmail(context.Background(), "nobody@example.com", "admin")
	assert.True(t, apperror.IsNotFound(err))
}
