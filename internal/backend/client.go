// Package backend talks to the external job-board REST API: credential
// exchange, remote session invalidation and candidate registration.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bolsa-empleo/portal/internal/backend"

var (
	// ErrInvalidCredentials indicates the backend rejected the email/password pair.
	ErrInvalidCredentials = errors.New("backend: invalid credentials")
	// ErrBackendUnavailable indicates a network failure, timeout or 5xx response.
	ErrBackendUnavailable = errors.New("backend: unavailable")
	// ErrBackendContract indicates a response that does not follow the expected envelope.
	ErrBackendContract = errors.New("backend: unexpected response")
)

// maxBodyBytes caps every response body read from the backend.
const maxBodyBytes = 1 << 20

// Credentials is the email/password pair of a single login exchange.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginData is the payload returned by a successful credential exchange.
type LoginData struct {
	UserID       string
	FullName     string
	Role         string
	Email        string
	Token        string
	RefreshToken string
	// ExpiresAt is zero when the backend did not report an expiry.
	ExpiresAt time.Time
	CompanyID string
}

// RelayResponse is a backend response forwarded to the browser untouched.
type RelayResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client wraps interactions with the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	now        func() time.Time
}

// NewClient constructs a new client. A non-positive timeout falls back to 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

// BaseURL returns the configured API endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a signed token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginData, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}
	ctx, span := c.tracer.Start(ctx, "backend.Login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	status, payload, err := c.do(ctx, http.MethodPost, "/Authorization/login", "", bytes.NewReader(body))
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if status >= 500 {
		err := fmt.Errorf("%w: login status %d", ErrBackendUnavailable, status)
		recordError(span, err)
		return nil, err
	}
	if status >= 400 {
		return nil, ErrInvalidCredentials
	}

	var envelope loginEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		err = fmt.Errorf("%w: decode login envelope: %v", ErrBackendContract, err)
		recordError(span, err)
		return nil, err
	}
	if !envelope.IsSuccess || envelope.Data == nil {
		return nil, ErrInvalidCredentials
	}
	if envelope.Data.Token == "" {
		err := fmt.Errorf("%w: login succeeded without token", ErrBackendContract)
		recordError(span, err)
		return nil, err
	}
	return envelope.Data.toLoginData(c.now()), nil
}

// Logout invalidates the backend session bound to accessToken. A token the
// backend no longer accepts yields ErrInvalidCredentials.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "backend.Logout", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	status, payload, err := c.do(ctx, http.MethodGet, "/Authorization/logout", accessToken, nil)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		recordError(span, err)
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		err := fmt.Errorf("%w: logout status %d", ErrInvalidCredentials, status)
		recordError(span, err)
		return err
	}
	if status >= 300 {
		err := fmt.Errorf("%w: logout status %d", ErrBackendUnavailable, status)
		recordError(span, err)
		return err
	}
	var envelope struct {
		IsSuccess bool `json:"isSuccess"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		err = fmt.Errorf("%w: decode logout envelope: %v", ErrBackendContract, err)
		recordError(span, err)
		return err
	}
	if !envelope.IsSuccess {
		err := fmt.Errorf("%w: logout rejected", ErrBackendContract)
		recordError(span, err)
		return err
	}
	return nil
}

// RegisterPostulant forwards a candidate sign-up body and returns the backend
// response as-is.
func (c *Client) RegisterPostulant(ctx context.Context, body []byte) (*RelayResponse, error) {
	ctx, span := c.tracer.Start(ctx, "backend.RegisterPostulant", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodPost, "/Postulant/RegisterPostulant", "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		recordError(span, err)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = fmt.Errorf("%w: read body: %v", ErrBackendUnavailable, err)
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &RelayResponse{Status: resp.StatusCode, ContentType: contentType, Body: payload}, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body io.Reader) (int, []byte, error) {
	req, err := c.newRequest(ctx, method, path, bearer, body)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %v", ErrBackendUnavailable, err)
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, bearer string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
