package rbac

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bolsa-empleo/portal/internal/shared"
)

const (
	// LoginPath is where anonymous requests to guarded routes are sent.
	LoginPath = "/auth/login"
	// HomePath is where requests with a disallowed role are sent.
	HomePath = "/"
	// NextParam carries the original path on the login redirect.
	NextParam = "next"
)

// Rules is an ordered, immutable rule table. The first matching rule wins, so
// order matters when prefixes overlap.
type Rules struct {
	rules []RouteRule
}

// DefaultRules returns the portal's built-in table.
func DefaultRules() Rules {
	rules, err := NewRules([]RouteRule{
		{Prefix: "/profile", Roles: []shared.Role{shared.RolePostulante}},
		{Prefix: "/empleos-busqueda", Roles: []shared.Role{shared.RolePostulante}},
		{Prefix: "/admin", Roles: []shared.Role{shared.RoleCompanyAdmin}},
	})
	if err != nil {
		panic(err)
	}
	return rules
}

// NewRules validates and copies the given rules, keeping their order.
func NewRules(in []RouteRule) (Rules, error) {
	out := make([]RouteRule, 0, len(in))
	for i, rule := range in {
		prefix := strings.TrimSpace(rule.Prefix)
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return Rules{}, fmt.Errorf("%w: rule %d: prefix %q must be an absolute path", ErrInvalidRule, i, rule.Prefix)
		}
		if len(prefix) > 1 {
			prefix = strings.TrimRight(prefix, "/")
		}
		if len(rule.Roles) == 0 {
			return Rules{}, fmt.Errorf("%w: rule %d (%s): no roles", ErrInvalidRule, i, prefix)
		}
		roles := make([]shared.Role, 0, len(rule.Roles))
		for _, role := range rule.Roles {
			if !role.Valid() {
				return Rules{}, fmt.Errorf("%w: rule %d (%s): %w", ErrInvalidRule, i, prefix, shared.ErrUnknownRole)
			}
			roles = append(roles, role)
		}
		out = append(out, RouteRule{Prefix: prefix, Roles: roles})
	}
	return Rules{rules: out}, nil
}

// List returns a copy of the rule table in evaluation order.
func (r Rules) List() []RouteRule {
	out := make([]RouteRule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = RouteRule{Prefix: rule.Prefix, Roles: append([]shared.Role(nil), rule.Roles...)}
	}
	return out
}

// Len returns the number of rules.
func (r Rules) Len() int {
	return len(r.rules)
}

// Decide evaluates path against the rules for the given identity (nil when
// anonymous). Paths outside every rule are allowed.
func (r Rules) Decide(path string, identity *shared.Identity) Decision {
	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.Matches(path) {
			continue
		}
		if identity == nil {
			return Decision{Outcome: RedirectLogin, Location: LoginRedirect(path), Rule: rule}
		}
		if !rule.Allows(identity.Role) {
			return Decision{Outcome: RedirectHome, Location: HomePath, Rule: rule}
		}
		return Decision{Outcome: Allow, Rule: rule}
	}
	return Decision{Outcome: Allow}
}

// LoginRedirect builds the login URL carrying path as the return target.
// Slashes stay readable; everything else reserved in a query is escaped.
func LoginRedirect(path string) string {
	next := strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
	return LoginPath + "?" + NextParam + "=" + next
}

// SafeNext returns target when it is a local absolute path, HomePath otherwise.
func SafeNext(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return HomePath
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return HomePath
	}
	return target
}
