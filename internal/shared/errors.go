package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidIdentity indicates an identity that violates session invariants.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrUnknownRole indicates a role outside the fixed role set.
	ErrUnknownRole = errors.New("unknown role")
	// ErrNotAuthenticated indicates an operation requiring an identity on an anonymous session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
