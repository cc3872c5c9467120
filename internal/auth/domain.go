package auth

import (
	"context"
	"errors"
	"time"

	"github.com/bolsa-empleo/portal/internal/backend"
)

var (
	// ErrMalformedToken indicates a backend token whose payload cannot be decoded
	// or lacks the jti claim.
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrSubjectMismatch indicates a refreshed token issued for another subject.
	ErrSubjectMismatch = errors.New("auth: token subject mismatch")
	// ErrNoSession indicates a missing session on the request.
	ErrNoSession = errors.New("auth: session missing")
)

// Backend is the subset of the backend API used by the session lifecycle.
type Backend interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.LoginData, error)
	Logout(ctx context.Context, accessToken string) error
	RegisterPostulant(ctx context.Context, body []byte) (*backend.RelayResponse, error)
}

// LogoutRetrier schedules another remote invalidation attempt after a failed
// logout call.
type LogoutRetrier interface {
	EnqueueLogoutRetry(ctx context.Context, subjectID, accessToken string) error
}

// EventKind labels a session audit event.
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventRefresh EventKind = "refresh"
	EventLogout  EventKind = "logout"
	EventExpired EventKind = "expired"
)

// SessionEvent is one entry of the session audit trail.
type SessionEvent struct {
	SessionID string
	SubjectID string
	Role      string
	Kind      EventKind
	At        time.Time
}

// TokenClaims are the fields read from a backend token.
type TokenClaims struct {
	SubjectID string
	ExpiresAt time.Time
}

// LogoutResult reports the outcome of a logout. OK is false only when a remote
// invalidation was attempted and failed; the local session is cleared either way.
type LogoutResult struct {
	OK bool `json:"ok"`
}
