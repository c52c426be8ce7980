package shared

import "errors"

var (
	// ErrNotFound indicates a referenced user, path, or grant is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness invariant would be violated.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates a malformed request value.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or expired credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is the terminal DENY outcome surfaced over HTTP.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable wraps backing-store I/O failures. Never collapsed
	// into a deny: callers see the failure and decide.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// UserSafeMessage returns a message suitable for API consumers. Internal
// store failures are masked.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden):
		return err.Error()
	default:
		return "internal error"
	}
}
