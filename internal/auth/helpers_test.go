package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bolsa-empleo/portal/internal/auth"
	"github.com/bolsa-empleo/portal/internal/backend"
	"github.com/bolsa-empleo/portal/internal/shared"
	"github.com/bolsa-empleo/portal/internal/view"
	_ "github.com/bolsa-empleo/portal/testing"
)

type stubBackend struct {
	mu          sync.Mutex
	loginData   *backend.LoginData
	loginErr    error
	loginCalls  int
	logoutErr   error
	logoutCalls int
	lastToken   string
	relay       *backend.RelayResponse
	relayErr    error
	lastSignup  []byte
}

func (s *stubBackend) Login(ctx context.Context, creds backend.Credentials) (*backend.LoginData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginCalls++
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	data := *s.loginData
	return &data, nil
}

func (s *stubBackend) Logout(ctx context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutCalls++
	s.lastToken = accessToken
	return s.logoutErr
}

func (s *stubBackend) RegisterPostulant(ctx context.Context, body []byte) (*backend.RelayResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSignup = append([]byte(nil), body...)
	if s.relayErr != nil {
		return nil, s.relayErr
	}
	return s.relay, nil
}

type stubRetrier struct {
	mu      sync.Mutex
	subject string
	token   string
	calls   int
}

func (s *stubRetrier) EnqueueLogoutRetry(ctx context.Context, subjectID, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.subject = subjectID
	s.token = accessToken
	return nil
}

type memoryRepo struct {
	mu     sync.Mutex
	events []auth.SessionEvent
}

func (m *memoryRepo) RecordEvent(ctx context.Context, event auth.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryRepo) kinds() []auth.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.EventKind, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

func signToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ID: subject}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-key"))
	require.NoError(t, err)
	return token
}

func candidateLogin(t *testing.T) *backend.LoginData {
	return &backend.LoginData{
		UserID:       "42",
		FullName:     "Ana Pérez",
		Role:         "Postulante",
		Email:        "ana@example.com",
		Token:        signToken(t, "42", time.Now().Add(time.Hour)),
		RefreshToken: "refresh-1",
	}
}

type testEnv struct {
	router   http.Handler
	backend  *stubBackend
	retrier  *stubRetrier
	repo     *memoryRepo
	redis    *miniredis.Miniredis
	sessions *shared.SessionManager
}

func newTestEnv(t *testing.T, b *stubBackend) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "portal_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	templates, err := view.NewEngine("https://api.example.com")
	require.NoError(t, err)

	retrier := &stubRetrier{}
	repo := &memoryRepo{}
	service := auth.NewService(auth.ServiceConfig{Backend: b, Repository: repo, Retrier: retrier})
	handler := auth.NewHandler(nil, service, templates, sessions, csrf, 0)

	router := chi.NewRouter()
	router.Use(sessionMiddleware(sessions, service))
	router.Route("/auth", handler.MountRoutes)
	router.Route("/api/auth", handler.MountAPIRoutes)

	return &testEnv{router: router, backend: b, retrier: retrier, repo: repo, redis: mr, sessions: sessions}
}

// sessionMiddleware buffers the response so the session can be committed
// before headers are flushed.
func sessionMiddleware(sm *shared.SessionManager, service *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sm.Load(r.Context(), r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			service.Current(ctx, sess)

			buf := httptest.NewRecorder()
			next.ServeHTTP(buf, r.WithContext(ctx))
			if err := sm.Commit(ctx, w, r, sess); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			for key, values := range buf.Header() {
				w.Header()[key] = values
			}
			w.WriteHeader(buf.Code)
			_, _ = w.Write(buf.Body.Bytes())
		})
	}
}

func (e *testEnv) do(t *testing.T, method, target, contentType, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "portal_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", "application/x-www-form-urlencoded",
		"email=ana%40example.com&password=secreta&next=%2Fprofile", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}
