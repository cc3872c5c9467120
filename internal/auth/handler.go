package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/bolsa-empleo/portal/internal/backend"
	"github.com/bolsa-empleo/portal/internal/platform/httpx"
	"github.com/bolsa-empleo/portal/internal/rbac"
	"github.com/bolsa-empleo/portal/internal/shared"
	"github.com/bolsa-empleo/portal/internal/view"
)

const (
	msgInvalidCredentials = "Correo o contraseña inválidos"
	msgBackendUnavailable = "El servicio no está disponible, inténtalo más tarde"
	msgLoginFailed        = "No se pudo iniciar sesión"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	loginLimit     int
}

// NewHandler constructs a Handler instance. loginLimit caps login and signup
// attempts per client IP and minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		loginLimit:     loginLimit,
	}
}

// MountRoutes registers the page routes under /auth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.With(h.attemptLimiter).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountAPIRoutes registers the JSON routes under /api/auth.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Get("/csrf", h.apiCSRF)
	r.Get("/session", h.apiSession)
	r.Post("/session", h.apiRefresh)
	r.Post("/logout", h.apiLogout)
	r.With(h.attemptLimiter).Post("/signup", h.apiSignup)
}

func (h *Handler) attemptLimiter(next http.Handler) http.Handler {
	if h.loginLimit <= 0 {
		return next
	}
	return httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))(next)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Next     string
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if shared.IdentityFromContext(r.Context()) != nil {
		http.Redirect(w, r, rbac.HomePath, http.StatusSeeOther)
		return
	}
	form := loginForm{Next: r.URL.Query().Get(rbac.NextParam)}
	h.renderLogin(w, r, loginPageData{Form: form}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Next:     r.PostFormValue("next"),
	}
	formErrors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				formErrors[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}

	status := http.StatusBadRequest
	if len(formErrors) == 0 {
		identity, err := h.service.Login(r.Context(), sess, form.Email, form.Password)
		switch {
		case err == nil:
			h.sessionManager.Renew(sess)
			h.csrfManager.Rotate(sess)
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Bienvenido, " + identity.DisplayName})
			http.Redirect(w, r, rbac.SafeNext(form.Next), http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrInvalidCredentials):
			formErrors["general"] = msgInvalidCredentials
		case errors.Is(err, backend.ErrBackendUnavailable):
			h.logger.Warn("login backend unavailable", slog.Any("error", err))
			formErrors["general"] = msgBackendUnavailable
			status = http.StatusServiceUnavailable
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			formErrors["general"] = msgLoginFailed
			status = http.StatusBadGateway
		}
	}

	form.Password = ""
	h.renderLogin(w, r, loginPageData{Form: form, Errors: formErrors}, status)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.logout(r, sess)
	http.Redirect(w, r, rbac.HomePath, http.StatusSeeOther)
}

func (h *Handler) apiLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, h.logout(r, sess))
}

func (h *Handler) logout(r *http.Request, sess *shared.Session) LogoutResult {
	hadIdentity := sess.Identity() != nil
	result := h.service.Logout(r.Context(), sess)
	if hadIdentity {
		h.sessionManager.Destroy(sess)
	}
	return result
}

func (h *Handler) apiCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

type sessionUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
}

type sessionView struct {
	User        sessionUser `json:"user"`
	AccessToken string      `json:"accessToken"`
	Expires     *time.Time  `json:"expires,omitempty"`
}

func newSessionView(identity *shared.Identity) sessionView {
	out := sessionView{
		User: sessionUser{
			ID:        identity.SubjectID,
			Name:      identity.DisplayName,
			Email:     identity.Email,
			Role:      identity.Role.String(),
			CompanyID: identity.CompanyID,
		},
		AccessToken: identity.AccessToken,
	}
	if !identity.TokenExpiry.IsZero() {
		expires := identity.TokenExpiry
		out.Expires = &expires
	}
	return out
}

func (h *Handler) apiSession(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.JSON(w, http.StatusOK, struct{}{})
		return
	}
	httpx.JSON(w, http.StatusOK, newSessionView(identity))
}

type refreshRequest struct {
	AccessToken  string     `json:"accessToken" validate:"required"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

func (h *Handler) apiRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: accessToken required", httpx.ErrValidation))
		return
	}
	pair := shared.TokenPair{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken}
	if req.ExpiresAt != nil {
		pair.Expiry = req.ExpiresAt.UTC()
	}

	identity, err := h.service.Refresh(r.Context(), shared.SessionFromContext(r.Context()), pair)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, newSessionView(identity))
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, ErrNoSession):
		httpx.RespondError(w, fmt.Errorf("%w: no active session", httpx.ErrUnauthorized))
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrSubjectMismatch), errors.Is(err, shared.ErrInvalidIdentity):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error("refresh session", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) apiSignup(w http.ResponseWriter, r *http.Request) {
	raw, err := httpx.ReadBody(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fields := make(map[string]any)
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: body must be a JSON object", httpx.ErrValidation))
		return
	}

	password, _ := fields["password"].(string)
	delete(fields, "password")
	if err := h.validator.Var(password, "required"); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: password", httpx.ErrValidation))
		return
	}

	fields["password"] = password
	payload, err := json.Marshal(fields)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.Signup(r.Context(), payload)
	if err != nil {
		h.logger.Warn("signup relay failed", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Iniciar sesión",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obligatorio"
	case "email":
		return "Correo no válido"
	default:
		return fe.Error()
	}
}
