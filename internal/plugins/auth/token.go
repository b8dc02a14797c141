package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures. Every error returned by TokenService.Verify wraps
// exactly one of these.
var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature invalid")
)

// Claims is the verified content of a bearer token.
type Claims struct {
	PrincipalID string
	IssuedAt    time.Time
}

// TokenService signs and verifies bearer tokens. Implementations are pure:
// no I/O, no shared mutable state.
type TokenService interface {
	Issue(principalID string) (string, error)
	Verify(token string) (*Claims, error)
}

// JWTService implements TokenService with HS256 JWTs. The secret and TTL are
// fixed at construction.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService validates the configuration and creates the service. A nil
// clock means time.Now.
func NewJWTService(secret string, ttl time.Duration, now func() time.Time) (*JWTService, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if now == nil {
		now = time.Now
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// TTL returns the configured token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed token for principalID, issued now.
func (s *JWTService) Issue(principalID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature before reading any claim, then the expiry.
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %w", ErrTokenBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing issued-at", ErrTokenMalformed)
	}

	return &Claims{PrincipalID: claims.Subject, IssuedAt: claims.IssuedAt.Time}, nil
}
