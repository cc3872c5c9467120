package rbac

import (
	"log/slog"
	"net/http"

	"github.com/bolsa-empleo/portal/internal/observability"
	"github.com/bolsa-empleo/portal/internal/shared"
)

// Middleware enforces the route rule table on incoming requests. It expects
// the session middleware to have materialised the request identity.
type Middleware struct {
	Rules   Rules
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Guard redirects requests the rule table does not allow and passes the rest
// through untouched.
func (m Middleware) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := shared.IdentityFromContext(r.Context())
		decision := m.Rules.Decide(r.URL.Path, identity)
		m.Metrics.ObserveGuardDecision(decision.Outcome.String())
		if decision.Outcome == Allow {
			next.ServeHTTP(w, r)
			return
		}
		if m.Logger != nil {
			m.Logger.Debug("route guard redirect",
				slog.String("path", r.URL.Path),
				slog.String("rule", decision.Rule.Prefix),
				slog.String("outcome", decision.Outcome.String()))
		}
		http.Redirect(w, r, decision.Location, http.StatusSeeOther)
	})
}
