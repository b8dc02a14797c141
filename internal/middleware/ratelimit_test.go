package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

func TestIPLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(3, 3*time.Second, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "other IPs have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
}

func TestIPLimiter_PrunesIdleIPs(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(10, time.Minute, func() time.Time { return now })

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")
	require.Equal(t, 2, l.size())

	now = now.Add(2 * time.Minute)
	l.allow("10.0.0.3")
	assert.Equal(t, 1, l.size())
}

func TestRateLimit_Returns429(t *testing.T) {
	e := echo.New()
	l := newIPLimiter(1, time.Hour, time.Now)
	h := rateLimit(l)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	require.NoError(t, h(e.NewContext(req, httptest.NewRecorder())))

	err := h(e.NewContext(req, httptest.NewRecorder()))
	assert.Equal(t, http.StatusTooManyRequests, apperror.SafeCode(err))
}

func newSharedLimiter(t *testing.T, max int) (*miniredis.Miniredis, echo.HandlerFunc) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mw := SharedRateLimit(rdb, "login", max, time.Minute)
	return mr, mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

func TestSharedRateLimit_FixedWindow(t *testing.T) {
	mr, h := newSharedLimiter(t, 2)
	e := echo.New()

	call := func() (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		rec := httptest.NewRecorder()
		return rec, h(e.NewContext(req, rec))
	}

	for i := 0; i < 2; i++ {
		_, err := call()
		require.NoError(t, err)
	}

	rec, err := call()
	assert.Equal(t, http.StatusTooManyRequests, apperror.SafeCode(err))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.True(t, mr.Exists("ratelimit:login:198.51.100.7"))

	mr.FastForward(time.Minute + time.Second)

	_, err = call()
	assert.NoError(t, err)
}

func TestSharedRateLimit_FailsOpen(t *testing.T) {
	mr, h := newSharedLimiter(t, 1)
	mr.Close()

	e := echo.New()
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		assert.NoError(t, h(e.NewContext(req, httptest.NewRecorder())))
	}
}
