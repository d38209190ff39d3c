package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials covers every authentication failure: unknown
// username, wrong password, and disabled account. The three branches are
// deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("could not validate credentials")

// ErrTokenInvalid covers every token validation failure: malformed, bad
// signature, expired, wrong algorithm, wrong token type, or a subject that no
// longer resolves to a user. Internal diagnostics stay internal.
var ErrTokenInvalid = errors.New("could not validate credentials")

// ErrInactiveAccount is returned when a structurally valid token resolves to
// a disabled user. Distinct from ErrTokenInvalid: the caller already held a
// valid credential, so this is an authorization failure, not an
// authentication one.
var ErrInactiveAccount = errors.New("inactive account")

// ErrUserNotFound is an internal repository signal. Services collapse it
// into ErrInvalidCredentials or ErrTokenInvalid before it reaches a caller.
var ErrUserNotFound = errors.New("user not found")

// ErrRepositoryUnavailable wraps infrastructure faults from the user store.
// It must never be conflated with a credential failure.
var ErrRepositoryUnavailable = errors.New("user repository unavailable")

// ErrTooManyAttempts is returned when the failed-login budget for a username
// is exhausted within the throttle window.
var ErrTooManyAttempts = errors.New("too many login attempts")

// ConflictError reports registration uniqueness violations. Both fields are
// checked and reported together; a single attempt can flag both.
type ConflictError struct {
	UsernameTaken bool
	EmailTaken    bool
}

func (e *ConflictError) Error() string {
	switch {
	case e.UsernameTaken && e.EmailTaken:
		return "username and email already registered"
	case e.UsernameTaken:
		return "username already registered"
	case e.EmailTaken:
		return "email already registered"
	default:
		return "registration conflict"
	}
}

// IsConflict reports whether err is a registration conflict and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// WrapRepository tags an infrastructure error so the error handler can map it
// to a generic server failure.
func WrapRepository(err error) error {
	return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
}
