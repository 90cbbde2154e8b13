package apperr

import (
	"errors"
	"fmt"
)

// The error taxonomy exposed by the core services. Callers (HTTP handlers)
// translate these to transport-level responses; the services themselves never
// panic on them.
var (
	// ErrNotLoggedIn: no live authenticated session where one is required.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrAccessDenied: authorization failed (wrong owner, outside the contest
	// window, ineligible grade).
	ErrAccessDenied = errors.New("access denied")

	// ErrCsrfCheckFailed: token mismatch on a state-changing call. Which field
	// failed is deliberately not reported.
	ErrCsrfCheckFailed = errors.New("csrf check failed")

	// ErrSessionTimeout: the session existed but its liveness window lapsed.
	ErrSessionTimeout = errors.New("session timeout")

	// ErrAuthFailed: bad credentials. Deliberately opaque so callers cannot
	// distinguish an unknown user from a wrong password.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUnknownID: a referenced entity does not exist.
	ErrUnknownID = errors.New("unknown id")

	// ErrDatabase: persistence gateway failure. Always surfaced, never
	// silently swallowed.
	ErrDatabase = errors.New("database error")
)

// Database marks err as a persistence failure so callers can match it
// with errors.Is(err, ErrDatabase). nil passes through untouched.
func Database(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}
