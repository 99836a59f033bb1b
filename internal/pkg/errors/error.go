package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
	ErrSessionExpired = errors.New("session expired or invalid")
)

// Session and identity errors surfaced to callers of the identity gateway
// and the session controller.
var (
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrDuplicateAccount    = errors.New("an account with this email already exists")
	ErrValidation          = errors.New("validation failed")
	ErrNoActiveSession     = errors.New("auth session missing")
	ErrProfileFetchFailed  = errors.New("failed to fetch profile")
	ErrProfileUpdateFailed = errors.New("failed to update profile")
	ErrNetwork             = errors.New("network error")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrSessionChanged      = errors.New("session changed while the request was in flight")
)

// Wire codes carried in the API envelope. Keep stable, clients match on them.
// Order matters: the most specific sentinel comes first.
var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrDuplicateAccount, "duplicate_account"},
	{ErrValidation, "validation_failed"},
	{ErrNoActiveSession, "session_missing"},
	{ErrProfileFetchFailed, "profile_fetch_failed"},
	{ErrProfileUpdateFailed, "profile_update_failed"},
	{ErrNotAuthenticated, "not_authenticated"},
	{ErrSessionChanged, "session_changed"},
	{ErrNetwork, "network_error"},
	{ErrSessionExpired, "session_expired"},
	{ErrRateLimited, "rate_limited"},
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidInput, "invalid_input"},
	{ErrInternal, "internal"},
}

// Code returns the wire code of the first known sentinel in err's chain,
// or "" when none matches.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode maps a wire code back to its sentinel. Unknown codes yield nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
