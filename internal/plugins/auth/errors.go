package auth

import (
	"errors"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// Reasons a request fails authentication. They travel in AppError.Internal
// so logs and tests can tell them apart while clients may only see the
// uniform message.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrPrincipalGone     = errors.New("principal no longer exists")
	ErrCredentialRevoked = errors.New("credential revoked by password change")
	ErrBadLogin          = errors.New("incorrect identity or password")
	ErrWrongPassword     = errors.New("current password incorrect")
)

// uniformUnauthenticated is shown for every guard failure unless detailed
// errors are enabled.
const uniformUnauthenticated = "authentication required"

// guardMessages are the detailed client messages per guard failure.
var guardMessages = map[error]string{
	ErrMissingCredential: "you are not logged in; please log in to get access",
	ErrInvalidCredential: "invalid or expired credential; please log in again",
	ErrPrincipalGone:     "the user belonging to this credential no longer exists",
	ErrCredentialRevoked: "credential revoked by password change; please log in again",
}

// guardReasons lists the sentinels a guard failure can carry.
var guardReasons = []error{ErrMissingCredential, ErrInvalidCredential, ErrPrincipalGone, ErrCredentialRevoked}

// guardError converts an Authenticate failure into the client error. Errors
// that are not guard failures (store outages) become internal errors.
func guardError(err error, detailed bool) *apperror.AppError {
	for _, reason := range guardReasons {
		if errors.Is(err, reason) {
			msg := uniformUnauthenticated
			if detailed {
				msg = guardMessages[reason]
			}
			return apperror.NewUnauthorized(msg).WithInternal(err)
		}
	}
	return apperror.NewInternal(err)
}
