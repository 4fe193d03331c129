package auth

import "errors"

var (
	// ErrInvalidToken means a credential was selected by a scheme and failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUpstreamUnavailable means verification could not complete (JWKS, user directory, timeout).
	// It must never be treated as a permanent denial.
	ErrUpstreamUnavailable = errors.New("authentication upstream unavailable")
	// ErrMissingCredential means an Authorization value was present but no registered scheme accepts it.
	ErrMissingCredential = errors.New("missing or unsupported credential")
)
