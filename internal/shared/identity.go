package shared

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Role gates access to route groups.
type Role string

const (
	// RolePostulante identifies a job candidate.
	RolePostulante Role = "Postulante"
	// RoleCompanyAdmin identifies a company administrator.
	RoleCompanyAdmin Role = "Administrador Empresa"
)

var knownRoles = map[Role]struct{}{
	RolePostulante:   {},
	RoleCompanyAdmin: {},
}

// Roles lists the fixed role set.
func Roles() []Role {
	return []Role{RolePostulante, RoleCompanyAdmin}
}

// ParseRole normalises a role string received from the backend or a config
// file and checks it against the fixed role set.
func ParseRole(raw string) (Role, error) {
	role := Role(norm.NFC.String(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// Valid reports whether the role belongs to the fixed role set.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// TokenPair is the backend token set owned by an identity. It is always
// replaced as a whole.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Identity is the authenticated user carried inside a session.
type Identity struct {
	SubjectID    string    `json:"subject_id"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CompanyID    string    `json:"company_id,omitempty"`
}

// Validate checks the identity invariants: a subject is always present and a
// populated access token always comes with a known role.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.SubjectID) == "" {
		return fmt.Errorf("%w: subject id missing", ErrInvalidIdentity)
	}
	if i.AccessToken != "" && !i.Role.Valid() {
		return fmt.Errorf("%w: role %q not allowed with an access token", ErrInvalidIdentity, i.Role)
	}
	return nil
}

// Tokens returns the identity's current token pair.
func (i Identity) Tokens() TokenPair {
	return TokenPair{AccessToken: i.AccessToken, RefreshToken: i.RefreshToken, Expiry: i.TokenExpiry}
}

// Expired reports whether the access token expiry has passed. A zero expiry
// never expires.
func (i Identity) Expired(now time.Time) bool {
	return !i.TokenExpiry.IsZero() && !now.Before(i.TokenExpiry)
}
