package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bolsa-empleo/portal/internal/backend"
	"github.com/bolsa-empleo/portal/internal/observability"
	"github.com/bolsa-empleo/portal/internal/shared"
)

// ServiceConfig collects the dependencies of the session lifecycle.
type ServiceConfig struct {
	Backend    Backend
	Repository Repository
	Retrier    LogoutRetrier
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service owns the session lifecycle: login, per-request materialisation,
// token refresh and logout.
type Service struct {
	backend Backend
	repo    Repository
	retrier LogoutRetrier
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a new Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := cfg.Repository
	if repo == nil {
		repo = NopRepository{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		backend: cfg.Backend,
		repo:    repo,
		retrier: cfg.Retrier,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
	}
}

// Login exchanges the credentials with the backend and stores the resulting
// identity in sess. Any previous identity is dropped first, so on failure the
// session is anonymous. Rejected
// credentials return shared.ErrInvalidCredentials; backend outages wrap
// backend.ErrBackendUnavailable.
func (s *Service) Login(ctx context.Context, sess *shared.Session, email, password string) (*shared.Identity, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	sess.ClearIdentity()
	data, err := s.backend.Login(ctx, backend.Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrInvalidCredentials):
			s.metrics.ObserveLogin("rejected")
			return nil, shared.ErrInvalidCredentials
		case errors.Is(err, backend.ErrBackendUnavailable):
			s.metrics.ObserveLogin("unavailable")
		default:
			s.metrics.ObserveLogin("error")
		}
		return nil, fmt.Errorf("auth: login: %w", err)
	}

	identity, err := s.identityFrom(data)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return nil, fmt.Errorf("auth: login: %w", err)
	}
	if err := sess.SetIdentity(identity); err != nil {
		s.metrics.ObserveLogin("error")
		return nil, fmt.Errorf("auth: login: %w", err)
	}
	s.metrics.ObserveLogin("success")
	s.record(ctx, sess.ID, identity, EventLogin)
	return sess.Identity(), nil
}

// Current returns the read-only identity of sess for this request. An identity
// whose token has expired is cleared and reported as anonymous.
func (s *Service) Current(ctx context.Context, sess *shared.Session) *shared.Identity {
	identity := sess.Identity()
	if identity == nil {
		return nil
	}
	if identity.Expired(s.now()) {
		sess.ClearIdentity()
		s.metrics.ObserveSessionExpired()
		s.logger.Info("session token expired", slog.String("subject", identity.SubjectID))
		s.record(ctx, sess.ID, *identity, EventExpired)
		return nil
	}
	return identity
}

// Refresh replaces the session's token pair as a whole. The new access token
// must belong to the same subject. A zero expiry falls back to the token's
// exp claim.
func (s *Service) Refresh(ctx context.Context, sess *shared.Session, pair shared.TokenPair) (*shared.Identity, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	current := sess.Identity()
	if current == nil {
		return nil, shared.ErrNotAuthenticated
	}
	claims, err := DecodeToken(pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth: refresh: %w", err)
	}
	if claims.SubjectID != current.SubjectID {
		return nil, ErrSubjectMismatch
	}
	if pair.Expiry.IsZero() {
		pair.Expiry = claims.ExpiresAt
	}
	if err := sess.ReplaceTokens(pair); err != nil {
		return nil, fmt.Errorf("auth: refresh: %w", err)
	}
	s.record(ctx, sess.ID, *current, EventRefresh)
	return sess.Identity(), nil
}

// Logout invalidates the backend session when a token is present and clears
// the local identity. The remote call is best-effort: its failure is logged,
// handed to the retrier and never blocks the local logout. Calling Logout on an
// anonymous or nil session is a no-op that reports OK.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) LogoutResult {
	identity := sess.Identity()
	if identity == nil {
		return LogoutResult{OK: true}
	}

	result := LogoutResult{OK: true}
	if identity.AccessToken != "" {
		err := s.backend.Logout(ctx, identity.AccessToken)
		// A rejected token is already dead on the backend.
		if err != nil && !errors.Is(err, backend.ErrInvalidCredentials) {
			result.OK = false
			s.metrics.ObserveRemoteLogoutFailure()
			s.logger.Warn("remote logout failed", slog.String("subject", identity.SubjectID), slog.Any("error", err))
			if s.retrier != nil {
				if err := s.retrier.EnqueueLogoutRetry(ctx, identity.SubjectID, identity.AccessToken); err != nil {
					s.logger.Warn("enqueue logout retry", slog.Any("error", err))
				}
			}
		}
	}

	sess.ClearIdentity()
	s.record(ctx, sess.ID, *identity, EventLogout)
	return result
}

// Signup forwards a candidate registration body to the backend.
func (s *Service) Signup(ctx context.Context, body []byte) (*backend.RelayResponse, error) {
	resp, err := s.backend.RegisterPostulant(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("auth: signup: %w", err)
	}
	return resp, nil
}

func (s *Service) identityFrom(data *backend.LoginData) (shared.Identity, error) {
	claims, err := DecodeToken(data.Token)
	if err != nil {
		return shared.Identity{}, err
	}
	role, err := shared.ParseRole(data.Role)
	if err != nil {
		return shared.Identity{}, err
	}
	expiry := data.ExpiresAt
	if expiry.IsZero() {
		expiry = claims.ExpiresAt
	}
	return shared.Identity{
		SubjectID:    claims.SubjectID,
		DisplayName:  data.FullName,
		Role:         role,
		Email:        data.Email,
		AccessToken:  data.Token,
		RefreshToken: data.RefreshToken,
		TokenExpiry:  expiry,
		CompanyID:    data.CompanyID,
	}, nil
}

func (s *Service) record(ctx context.Context, sessionID string, identity shared.Identity, kind EventKind) {
	event := SessionEvent{
		SessionID: sessionID,
		SubjectID: identity.SubjectID,
		Role:      identity.Role.String(),
		Kind:      kind,
		At:        s.now().UTC(),
	}
	if err := s.repo.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("record session event", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}
