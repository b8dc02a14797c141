package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-0123456789"

func newTestJWT(t *testing.T, now *time.Time) *JWTService {
	t.Helper()
	svc, err := NewJWTService(testSecret, time.Hour, func() time.Time { return *now })
	require.NoError(t, err)
	return svc
}

func TestJWTService_RoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 500_000_000, time.UTC)
	svc := newTestJWT(t, &now)

	token, err := svc.Issue("principal-1")
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "principal-1", claims.PrincipalID)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
}

func TestJWTService_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	token, err := svc.Issue("principal-1")
	require.NoError(t, err)

	now = now.Add(time.Hour + time.Second)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTService_TamperedPayload(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	token, err := svc.Issue("principal-1")
	require.NoError(t, err)

	other, err := svc.Issue("principal-2")
	require.NoError(t, err)

	// Splice principal-2's payload under principal-1's signature.
	a := strings.Split(token, ".")
	b := strings.Split(other, ".")
	forged := a[0] + "." + b[1] + "." + a[2]

	_, err = svc.Verify(forged)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestJWTService_SignatureCheckedBeforeExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	foreign, err := NewJWTService("a-completely-different-secret-value!!", time.Hour, func() time.Time { return now })
	require.NoError(t, err)
	token, err := foreign.Issue("principal-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestJWTService_RejectsNoneAlgorithm(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "principal-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(unsigned)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestJWTService_Malformed(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.Verify(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestJWTService_RequiresExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "principal-1",
		IssuedAt: jwt.NewNumericDate(now),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestNewJWTService_Validation(t *testing.T) {
	_, err := NewJWTService("", time.Hour, nil)
	assert.Error(t, err)

	_, err = NewJWTService(testSecret, 0, nil)
	assert.Error(t, err)

	svc, err := NewJWTService(testSecret, time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, svc.TTL())
}
