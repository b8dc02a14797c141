// Package authtest provides in-memory fakes of the auth plugin's
// collaborators for tests in this and other plugins.
package authtest

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// Store is an in-memory auth.PrincipalRepository with the same visibility
// and conflict rules as the MariaDB implementation.
type Store struct {
	mu         sync.Mutex
	principals map[string]*auth.Principal

	// Err, when set, is returned by every method.
	Err error
}

var _ auth.PrincipalRepository = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{principals: make(map[string]*auth.Principal)}
}

// Create implements auth.PrincipalRepository.
func (s *Store) Create(_ context.Context, p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	email := auth.NormalizeEmail(p.Email)
	for _, existing := range s.principals {
		if existing.Email == email {
			return apperror.NewConflict("an account with this email already exists")
		}
	}
	cp := *p
	cp.Email = email
	s.principals[p.ID] = &cp
	return nil
}

// FindByID implements auth.PrincipalRepository.
func (s *Store) FindByID(_ context.Context, id string) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	p, ok := s.principals[id]
	if !ok || !p.Active {
		return nil, apperror.NewNotFound("user not found")
	}
	return clone(p), nil
}

// FindByEmail implements auth.PrincipalRepository.
func (s *Store) FindByEmail(_ context.Context, email string) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	email = auth.NormalizeEmail(email)
	for _, p := range s.principals {
		if p.Active && p.Email == email {
			return clone(p), nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

// FindByResetTokenHash implements auth.PrincipalRepository.
func (s *Store) FindByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, p := range s.principals {
		if p.Active && p.PasswordResetTokenHash != nil && *p.PasswordResetTokenHash == tokenHash &&
			p.PasswordResetExpiresAt != nil && p.PasswordResetExpiresAt.After(now) {
			return clone(p), nil
		}
	}
	return nil, apperror.NewNotFound("reset token not found")
}

// Update implements auth.PrincipalRepository.
func (s *Store) Update(_ context.Context, id string, u auth.PrincipalUpdate) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	p, ok := s.principals[id]
	if !ok || !p.Active || !u.Matches(p) {
		return nil, apperror.NewNotFound("user not found")
	}

	next := clone(p)
	u.Apply(next)
	for otherID, other := range s.principals {
		if otherID != id && other.Email == next.Email {
			return nil, apperror.NewConflict("an account with this email already exists")
		}
	}
	s.principals[id] = next
	return clone(next), nil
}

// List implements auth.PrincipalRepository, newest first.
func (s *Store) List(_ context.Context, offset, limit int) ([]auth.Principal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}

	var active []auth.Principal
	for _, p := range s.principals {
		if p.Active {
			active = append(active, *clone(p))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})

	total := len(active)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return active[offset:end], total, nil
}

// Get returns the stored record regardless of its active flag, for
// assertions on fields lookups hide.
func (s *Store) Get(id string) (*auth.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, false
	}
	return clone(p), true
}

func clone(p *auth.Principal) *auth.Principal {
	cp := *p
	if p.PasswordChangedAt != nil {
		t := *p.PasswordChangedAt
		cp.PasswordChangedAt = &t
	}
	if p.PasswordResetTokenHash != nil {
		h := *p.PasswordResetTokenHash
		cp.PasswordResetTokenHash = &h
	}
	if p.PasswordResetExpiresAt != nil {
		t := *p.PasswordResetExpiresAt
		cp.PasswordResetExpiresAt = &t
	}
	return &cp
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Notifier records messages instead of sending them.
type Notifier struct {
	mu sync.Mutex

	// Err, when set, fails every send.
	Err error

	Welcomes []string
	Resets   []string
}

var _ auth.Notifier = (*Notifier)(nil)

// SendWelcome implements auth.Notifier.
func (n *Notifier) SendWelcome(_ context.Context, _ *auth.Principal, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Welcomes = append(n.Welcomes, url)
	return nil
}

// SendPasswordReset implements auth.Notifier.
func (n *Notifier) SendPasswordReset(_ context.Context, _ *auth.Principal, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Resets = append(n.Resets, url)
	return nil
}

// LastResetToken returns the raw token from the most recent reset link.
func (n *Notifier) LastResetToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Resets) == 0 {
		return ""
	}
	url := n.Resets[len(n.Resets)-1]
	return url[strings.LastIndex(url, "/")+1:]
}

// Hasher is a fast salted SHA-256 auth.PasswordHasher. Tests only.
type Hasher struct{}

var _ auth.PasswordHasher = Hasher{}

// Hash implements auth.PasswordHasher.
func (Hasher) Hash(_ context.Context, password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return "test$" + hex.EncodeToString(salt) + "$" + digest(salt, password), nil
}

// Verify implements auth.PasswordHasher.
func (Hasher) Verify(_ context.Context, password, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 3 || parts[0] != "test" {
		return false, auth.ErrInvalidHash
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, errors.Join(auth.ErrInvalidHash, err)
	}
	return subtle.ConstantTimeCompare([]byte(digest(salt, password)), []byte(parts[2])) == 1, nil
}

func digest(salt []byte, password string) string {
	sum := sha256.Sum256(append(append([]byte{}, salt...), password...))
	return hex.EncodeToString(sum[:])
}
