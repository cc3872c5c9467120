package rbac

import (
	"errors"

	"github.com/bolsa-empleo/portal/internal/shared"
)

// ErrInvalidRule indicates a route rule that cannot be enforced.
var ErrInvalidRule = errors.New("rbac: invalid route rule")

// RouteRule grants a path prefix to a set of roles.
type RouteRule struct {
	Prefix string
	Roles  []shared.Role
}

// Allows reports whether role is in the rule's role set.
func (r RouteRule) Allows(role shared.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Matches reports whether path falls under the rule prefix. "/admin" matches
// "/admin" and "/admin/x" but not "/administracion".
func (r RouteRule) Matches(path string) bool {
	if r.Prefix == "/" {
		return true
	}
	if len(path) < len(r.Prefix) || path[:len(r.Prefix)] != r.Prefix {
		return false
	}
	return len(path) == len(r.Prefix) || path[len(r.Prefix)] == '/'
}

// Outcome is the action the guard takes for a request.
type Outcome int

const (
	// Allow lets the request through unmodified.
	Allow Outcome = iota
	// RedirectLogin sends an anonymous request to the login page.
	RedirectLogin
	// RedirectHome sends a request with the wrong role to the site root.
	RedirectHome
)

func (o Outcome) String() string {
	switch o {
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "allow"
	}
}

// Decision is the guard's verdict for one request.
type Decision struct {
	Outcome Outcome
	// Location is set for redirects.
	Location string
	// Rule is the matching rule, nil when no rule matched.
	Rule *RouteRule
}
