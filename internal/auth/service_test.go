package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolsa-empleo/portal/internal/auth"
	"github.com/bolsa-empleo/portal/internal/backend"
	"github.com/bolsa-empleo/portal/internal/observability"
	"github.com/bolsa-empleo/portal/internal/shared"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(b *stubBackend, repo *memoryRepo, retrier *stubRetrier, c *clock) *auth.Service {
	cfg := auth.ServiceConfig{Backend: b, Repository: repo, Metrics: observability.NewMetrics()}
	if retrier != nil {
		cfg.Retrier = retrier
	}
	if c != nil {
		cfg.Now = c.Now
	}
	return auth.NewService(cfg)
}

func TestServiceLoginBuildsIdentity(t *testing.T) {
	data := candidateLogin(t)
	data.CompanyID = "7"
	repo := &memoryRepo{}
	svc := newService(&stubBackend{loginData: data}, repo, nil, nil)
	sess := &shared.Session{ID: "s1"}

	identity, err := svc.Login(context.Background(), sess, "  ana@example.com ", "secreta")
	require.NoError(t, err)
	assert.Equal(t, "42", identity.SubjectID)
	assert.Equal(t, shared.RolePostulante, identity.Role)
	assert.Equal(t, "refresh-1", identity.RefreshToken)
	assert.Equal(t, "7", identity.CompanyID)
	assert.False(t, identity.TokenExpiry.IsZero(), "expiry falls back to the exp claim")
	assert.Equal(t, "42", sess.User())
	assert.Equal(t, []auth.EventKind{auth.EventLogin}, repo.kinds())
}

func TestServiceLoginPrefersBackendExpiry(t *testing.T) {
	data := candidateLogin(t)
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	data.ExpiresAt = expiry
	svc := newService(&stubBackend{loginData: data}, &memoryRepo{}, nil, nil)

	identity, err := svc.Login(context.Background(), &shared.Session{ID: "s1"}, "ana@example.com", "x")
	require.NoError(t, err)
	assert.True(t, expiry.Equal(identity.TokenExpiry))
}

func TestServiceLoginErrors(t *testing.T) {
	cases := []struct {
		name   string
		stub   *stubBackend
		target error
	}{
		{"rejected", &stubBackend{loginErr: backend.ErrInvalidCredentials}, shared.ErrInvalidCredentials},
		{"unavailable", &stubBackend{loginErr: fmt.Errorf("x: %w", backend.ErrBackendUnavailable)}, backend.ErrBackendUnavailable},
		{"malformed token", &stubBackend{loginData: &backend.LoginData{Role: "Postulante", Token: "not-a-jwt"}}, auth.ErrMalformedToken},
		{"unknown role", &stubBackend{loginData: &backend.LoginData{Role: "Invitado", Token: "placeholder"}}, shared.ErrUnknownRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.stub.loginData != nil && tc.stub.loginData.Token == "placeholder" {
				tc.stub.loginData.Token = signToken(t, "5", time.Time{})
			}
			repo := &memoryRepo{}
			svc := newService(tc.stub, repo, nil, nil)
			sess := &shared.Session{ID: "s1"}

			identity, err := svc.Login(context.Background(), sess, "ana@example.com", "x")
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, tc.target)
			assert.Nil(t, sess.Identity())
			assert.Empty(t, repo.kinds())
		})
	}
}

func TestServiceFailedLoginDropsPreviousIdentity(t *testing.T) {
	b := &stubBackend{loginData: candidateLogin(t)}
	svc := newService(b, &memoryRepo{}, nil, nil)
	sess := &shared.Session{ID: "s1"}
	_, err := svc.Login(context.Background(), sess, "ana@example.com", "x")
	require.NoError(t, err)
	require.NotNil(t, sess.Identity())

	b.loginErr = backend.ErrInvalidCredentials
	_, err = svc.Login(context.Background(), sess, "otra@example.com", "mala")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Nil(t, sess.Identity())
}

func TestServiceLoginWithoutSession(t *testing.T) {
	svc := newService(&stubBackend{loginData: candidateLogin(t)}, &memoryRepo{}, nil, nil)
	_, err := svc.Login(context.Background(), nil, "ana@example.com", "x")
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestServiceCurrentExpiresStaleIdentity(t *testing.T) {
	c := &clock{now: time.Now()}
	repo := &memoryRepo{}
	svc := newService(&stubBackend{loginData: candidateLogin(t)}, repo, nil, c)
	sess := &shared.Session{ID: "s1"}
	_, err := svc.Login(context.Background(), sess, "ana@example.com", "x")
	require.NoError(t, err)

	require.NotNil(t, svc.Current(context.Background(), sess))

	c.now = c.now.Add(2 * time.Hour)
	assert.Nil(t, svc.Current(context.Background(), sess))
	assert.Nil(t, sess.Identity())
	assert.Equal(t, []auth.EventKind{auth.EventLogin, auth.EventExpired}, repo.kinds())
}

func TestServiceCurrentAnonymous(t *testing.T) {
	svc := newService(&stubBackend{}, &memoryRepo{}, nil, nil)
	assert.Nil(t, svc.Current(context.Background(), &shared.Session{ID: "s1"}))
	assert.Nil(t, svc.Current(context.Background(), nil))
}

func TestServiceRefreshReplacesPairAtomically(t *testing.T) {
	svc := newService(&stubBackend{loginData: candidateLogin(t)}, &memoryRepo{}, nil, nil)
	sess := &shared.Session{ID: "s1"}
	before, err := svc.Login(context.Background(), sess, "ana@example.com", "x")
	require.NoError(t, err)

	expiry := time.Now().Add(3 * time.Hour).UTC().Truncate(time.Second)
	fresh := signToken(t, "42", time.Time{})
	after, err := svc.Refresh(context.Background(), sess, shared.TokenPair{AccessToken: fresh, RefreshToken: "refresh-2", Expiry: expiry})
	require.NoError(t, err)
	assert.Equal(t, fresh, after.AccessToken)
	assert.Equal(t, "refresh-2", after.RefreshToken)
	assert.True(t, expiry.Equal(after.TokenExpiry))
	assert.Equal(t, before.DisplayName, after.DisplayName)

	_, err = svc.Refresh(context.Background(), sess, shared.TokenPair{AccessToken: signToken(t, "99", time.Time{}), RefreshToken: "r"})
	assert.ErrorIs(t, err, auth.ErrSubjectMismatch)
	_, err = svc.Refresh(context.Background(), sess, shared.TokenPair{AccessToken: "garbage"})
	assert.ErrorIs(t, err, auth.ErrMalformedToken)

	current := sess.Identity()
	assert.Equal(t, fresh, current.AccessToken)
	assert.Equal(t, "refresh-2", current.RefreshToken)
}

func TestServiceRefreshAnonymous(t *testing.T) {
	svc := newService(&stubBackend{}, &memoryRepo{}, nil, nil)
	_, err := svc.Refresh(context.Background(), &shared.Session{ID: "s1"}, shared.TokenPair{AccessToken: "x"})
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestServiceLogout(t *testing.T) {
	b := &stubBackend{loginData: candidateLogin(t)}
	repo := &memoryRepo{}
	svc := newService(b, repo, &stubRetrier{}, nil)
	sess := &shared.Session{ID: "s1"}
	_, err := svc.Login(context.Background(), sess, "ana@example.com", "x")
	require.NoError(t, err)

	assert.Equal(t, auth.LogoutResult{OK: true}, svc.Logout(context.Background(), sess))
	assert.Nil(t, sess.Identity())
	assert.Equal(t, b.loginData.Token, b.lastToken)

	assert.Equal(t, auth.LogoutResult{OK: true}, svc.Logout(context.Background(), sess))
	assert.Equal(t, auth.LogoutResult{OK: true}, svc.Logout(context.Background(), nil))
	assert.Equal(t, 1, b.logoutCalls)
	assert.Equal(t, []auth.EventKind{auth.EventLogin, auth.EventLogout}, repo.kinds())
}

func TestServiceLogoutRemoteFailure(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		ok      bool
		retries int
	}{
		{"backend down", errors.New("boom"), false, 1},
		{"token already rejected", fmt.Errorf("x: %w", backend.ErrInvalidCredentials), true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &stubBackend{loginData: candidateLogin(t), logoutErr: tc.err}
			retrier := &stubRetrier{}
			svc := newService(b, &memoryRepo{}, retrier, nil)
			sess := &shared.Session{ID: "s1"}
			_, err := svc.Login(context.Background(), sess, "ana@example.com", "x")
			require.NoError(t, err)

			assert.Equal(t, auth.LogoutResult{OK: tc.ok}, svc.Logout(context.Background(), sess))
			assert.Nil(t, sess.Identity())
			assert.Equal(t, 1, b.logoutCalls)
			assert.Equal(t, tc.retries, retrier.calls)
			if tc.retries > 0 {
				assert.Equal(t, b.loginData.Token, retrier.token)
			}
		})
	}
}

func TestServiceSignupWrapsErrors(t *testing.T) {
	svc := newService(&stubBackend{relayErr: backend.ErrBackendUnavailable}, &memoryRepo{}, nil, nil)
	_, err := svc.Signup(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
}
