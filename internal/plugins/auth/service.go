package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/sanitize"
)

// Password length limits.
const (
	minPasswordLen = 8
	maxPasswordLen = 128
	maxNameLen     = 100
)

// notifyRetryAfter is how long a client is told to wait after a failed
// notification before asking again.
const notifyRetryAfter = 30 * time.Second

// Notifier delivers out-of-band messages to a principal. A nil error means
// the message was handed off successfully.
type Notifier interface {
	SendWelcome(ctx context.Context, p *Principal, url string) error
	SendPasswordReset(ctx context.Context, p *Principal, url string) error
}

// AuthService defines the business logic contract for credentials.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Signup(ctx context.Context, input SignupInput) (*Result, error)
	Login(ctx context.Context, email, password string) (*Result, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, input ResetPasswordInput) (*Result, error)
	ChangePassword(ctx context.Context, principal *Principal, input ChangePasswordInput) (*Result, error)

	// Authenticate resolves a bearer token to its active principal. Guard
	// failures wrap one of ErrMissingCredential, ErrInvalidCredential,
	// ErrPrincipalGone or ErrCredentialRevoked.
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// ServiceConfig holds the lifecycle settings. Zero Now and Random fall back
// to the wall clock and crypto/rand.
type ServiceConfig struct {
	BaseURL       string
	ResetTokenTTL time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time
	Random        io.Reader
	Metrics       *Metrics
}

// authService implements AuthService.
type authService struct {
	repo     PrincipalRepository
	hasher   PasswordHasher
	tokens   TokenService
	notifier Notifier
	cfg      ServiceConfig

	// dummyHash is verified against when a login names an unknown identity,
	// so both failure paths cost one hash. Guarded by dummyMu; empty until
	// a hash succeeds.
	dummyMu   sync.Mutex
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo PrincipalRepository, hasher PasswordHasher, tokens TokenService, notifier Notifier, cfg ServiceConfig) AuthService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &authService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Signup creates a principal with the least-privileged role, sends a
// welcome message and returns a credential. Role elevation is a separate
// admin operation.
func (s *authService) Signup(ctx context.Context, input SignupInput) (*Result, error) {
	res, err := s.signup(ctx, input)
	s.cfg.Metrics.observeErr("signup", err)
	return res, err
}

func (s *authService) signup(ctx context.Context, input SignupInput) (*Result, error) {
	email := NormalizeEmail(input.Email)
	name := sanitize.PlainText(input.Name)

	fields := map[string]string{}
	if msg := ValidateEmail(email); msg != "" {
		fields["email"] = msg
	}
	if msg := ValidateName(name); msg != "" {
		fields["name"] = msg
	}
	validatePasswordPair(fields, input.Password, input.PasswordConfirm)
	if len(fields) > 0 {
		return nil, apperror.NewFieldValidation(fields)
	}

	// Check if email is already taken before doing expensive hashing.
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, apperror.NewConflict("an account with this email already exists")
	} else if !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	if name == "" {
		name = defaultName(email)
	}
	p := &Principal{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    s.cfg.Now().UTC(),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user signed up",
		slog.String("user_id", p.ID),
		slog.String("email", p.Email),
	)

	// The account exists at this point; a lost welcome message is not
	// worth failing the request over.
	if err := s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, p, s.cfg.BaseURL+"/users/me")
	}); err != nil {
		slog.Warn("welcome notification failed",
			slog.String("user_id", p.ID),
			slog.Any("error", err),
		)
	}

	return s.issue(p)
}

// Login authenticates by email and password. Unknown identities and wrong
// passwords produce the same error.
func (s *authService) Login(ctx context.Context, email, password string) (*Result, error) {
	res, err := s.login(ctx, email, password)
	s.cfg.Metrics.observeErr("login", err)
	return res, err
}

func (s *authService) login(ctx context.Context, email, password string) (*Result, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.NewUnauthorized("please provide email and password").WithInternal(ErrMissingCredential)
	}

	badLogin := apperror.NewUnauthorized("incorrect identity or password").WithInternal(ErrBadLogin)

	p, err := s.repo.FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		dummy, err := s.dummy(ctx)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("preparing dummy hash: %w", err))
		}
		if _, err := s.hasher.Verify(ctx, password, dummy); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("verifying password: %w", err))
		}
		return nil, badLogin
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	ok, err := s.hasher.Verify(ctx, password, p.PasswordHash)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("verifying password: %w", err))
	}
	if !ok {
		return nil, badLogin
	}

	slog.Info("user logged in",
		slog.String("user_id", p.ID),
		slog.String("email", p.Email),
	)

	return s.issue(p)
}

// ForgotPassword stores a fresh reset token hash and mails the raw token.
// If delivery fails the token is cleared again before returning.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	err := s.forgotPassword(ctx, email)
	s.cfg.Metrics.observeErr("forgot_password", err)
	return err
}

func (s *authService) forgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperror.NewFieldValidation(map[string]string{"email": "email is required"})
	}

	p, err := s.repo.FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound("there is no user with that email address")
	}
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	raw, hash, err := generateResetToken(s.cfg.Random)
	if err != nil {
		return apperror.NewInternal(err)
	}

	p, err = s.repo.Update(ctx, p.ID, PrincipalUpdate{
		SetResetToken: &ResetToken{Hash: hash, ExpiresAt: s.cfg.Now().Add(s.cfg.ResetTokenTTL)},
	})
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("storing reset token: %w", err))
	}

	resetURL := s.cfg.BaseURL + "/auth/reset-password/" + raw
	sendErr := s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, p, resetURL)
	})
	if sendErr == nil {
		slog.Info("password reset requested", slog.String("user_id", p.ID))
		return nil
	}

	// Compensate: clear the token we wrote, but only if it is still ours.
	// The request context may already be cancelled.
	if _, err := s.repo.Update(context.WithoutCancel(ctx), p.ID, PrincipalUpdate{
		ClearResetToken:  true,
		IfResetTokenHash: &hash,
	}); err != nil && !apperror.IsNotFound(err) {
		slog.Error("failed to roll back reset token",
			slog.String("user_id", p.ID),
			slog.Any("error", err),
		)
	}

	slog.Warn("password reset notification failed",
		slog.String("user_id", p.ID),
		slog.Any("error", sendErr),
	)
	return apperror.NewInternalMessage("notification delivery failed; please try again later", sendErr).
		WithRetryAfter(notifyRetryAfter)
}

// ResetPassword consumes a reset token, sets the new password and logs the
// principal in. Wrong, expired and already-used tokens are indistinguishable.
func (s *authService) ResetPassword(ctx context.Context, input ResetPasswordInput) (*Result, error) {
	res, err := s.resetPassword(ctx, input)
	s.cfg.Metrics.observeErr("reset_password", err)
	return res, err
}

func (s *authService) resetPassword(ctx context.Context, input ResetPasswordInput) (*Result, error) {
	fields := map[string]string{}
	validatePasswordPair(fields, input.Password, input.PasswordConfirm)
	if len(fields) > 0 {
		return nil, apperror.NewFieldValidation(fields)
	}

	invalid := apperror.NewInvalidToken("token is invalid or has expired")
	if input.Token == "" {
		return nil, invalid
	}

	tokenHash := HashResetToken(input.Token)
	now := s.cfg.Now()

	p, err := s.repo.FindByResetTokenHash(ctx, tokenHash, now)
	if apperror.IsNotFound(err) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding reset token: %w", err))
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	// Conditional on the token hash, so of two concurrent resets with the
	// same token only one can win.
	changedAt := passwordChangedAt(now)
	p, err = s.repo.Update(ctx, p.ID, PrincipalUpdate{
		PasswordHash:      &hash,
		PasswordChangedAt: &changedAt,
		ClearResetToken:   true,
		IfResetTokenHash:  &tokenHash,
	})
	if apperror.IsNotFound(err) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("resetting password: %w", err))
	}

	slog.Info("password reset", slog.String("user_id", p.ID))

	return s.issue(p)
}

// ChangePassword rotates the caller's password. Every credential issued
// before the change stops working; the returned one is fresh.
func (s *authService) ChangePassword(ctx context.Context, principal *Principal, input ChangePasswordInput) (*Result, error) {
	res, err := s.changePassword(ctx, principal, input)
	s.cfg.Metrics.observeErr("change_password", err)
	return res, err
}

func (s *authService) changePassword(ctx context.Context, principal *Principal, input ChangePasswordInput) (*Result, error) {
	if principal == nil {
		return nil, apperror.NewMissingContext()
	}

	fields := map[string]string{}
	if input.CurrentPassword == "" {
		fields["passwordCurrent"] = "current password is required"
	}
	validatePasswordPair(fields, input.Password, input.PasswordConfirm)
	if len(fields) > 0 {
		return nil, apperror.NewFieldValidation(fields)
	}

	// Re-read so the check runs against the stored hash, not the copy the
	// guard loaded earlier in the request.
	p, err := s.repo.FindByID(ctx, principal.ID)
	if apperror.IsNotFound(err) {
		return nil, apperror.NewUnauthorized(guardMessages[ErrPrincipalGone]).WithInternal(ErrPrincipalGone)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	ok, err := s.hasher.Verify(ctx, input.CurrentPassword, p.PasswordHash)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("verifying password: %w", err))
	}
	if !ok {
		return nil, apperror.NewUnauthorized("your current password is wrong").WithInternal(ErrWrongPassword)
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	changedAt := passwordChangedAt(s.cfg.Now())
	p, err = s.repo.Update(ctx, p.ID, PrincipalUpdate{
		PasswordHash:      &hash,
		PasswordChangedAt: &changedAt,
	})
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("changing password: %w", err))
	}

	slog.Info("password changed", slog.String("user_id", p.ID))

	return s.issue(p)
}

// Authenticate verifies the token, loads the principal and applies the
// password-change revocation check.
func (s *authService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	p, err := s.authenticate(ctx, token)
	s.cfg.Metrics.observeErr("authenticate", unauthenticatedAsClient(err))
	return p, err
}

func (s *authService) authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	p, err := s.repo.FindByID(ctx, claims.PrincipalID)
	if apperror.IsNotFound(err) {
		return nil, ErrPrincipalGone
	}
	if err != nil {
		return nil, fmt.Errorf("loading principal: %w", err)
	}

	if p.RevokedAt(claims.IssuedAt) {
		return nil, ErrCredentialRevoked
	}

	return p, nil
}

// issue mints a credential for p.
func (s *authService) issue(p *Principal) (*Result, error) {
	token, err := s.tokens.Issue(p.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("issuing token: %w", err))
	}
	return &Result{Token: token, Principal: p}, nil
}

// notify runs send under the notification timeout.
func (s *authService) notify(ctx context.Context, send func(context.Context) error) error {
	if s.notifier == nil {
		return errors.New("no notifier configured")
	}
	if s.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
	}
	return send(ctx)
}

// dummy returns a valid hash of a random password. It is computed on first
// use outside the caller's cancellation, and a failure is not remembered.
func (s *authService) dummy(ctx context.Context) (string, error) {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash != "" {
		return s.dummyHash, nil
	}
	h, err := s.hasher.Hash(context.WithoutCancel(ctx), uuid.NewString())
	if err != nil {
		return "", err
	}
	s.dummyHash = h
	return h, nil
}

// passwordChangedAt is the revocation watermark for a change made at now.
// It sits one second in the past so the credential issued alongside the
// change stays valid.
func passwordChangedAt(now time.Time) time.Time {
	return now.Add(-time.Second).UTC()
}

// --- Validation helpers ---

// ValidateEmail returns a client message if the normalized email is not
// acceptable, or "" if it is.
func ValidateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > 255 {
		return "email must be at most 255 characters"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "please provide a valid email"
	}
	return ""
}

// ValidateName returns a client message if the display name is too long.
func ValidateName(name string) string {
	if len(name) > maxNameLen {
		return fmt.Sprintf("name must be at most %d characters", maxNameLen)
	}
	return ""
}

func validatePasswordPair(fields map[string]string, password, confirm string) {
	switch {
	case password == "":
		fields["password"] = "password is required"
	case len(password) < minPasswordLen:
		fields["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLen)
	case len(password) > maxPasswordLen:
		fields["password"] = fmt.Sprintf("password must be at most %d characters", maxPasswordLen)
	}
	if confirm != password {
		fields["passwordConfirm"] = "passwords are not the same"
	}
}

// isClientError reports whether err maps to a 4xx response.
func isClientError(err error) bool {
	return apperror.SafeCode(err) < http.StatusInternalServerError
}

// unauthenticatedAsClient maps guard failures onto a client error so they
// are counted as rejections rather than server errors.
func unauthenticatedAsClient(err error) error {
	if err == nil {
		return nil
	}
	return guardError(err, false)
}
