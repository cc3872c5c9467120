package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bolsa-empleo/portal/internal/shared"
	"github.com/bolsa-empleo/portal/internal/view"
)

type pages struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

type jobSearchData struct {
	Query string
}

func (p pages) home(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, "pages/home.html", "Inicio", nil)
}

func (p pages) profile(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, "pages/profile.html", "Mi perfil", nil)
}

func (p pages) jobSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	p.render(w, r, "pages/jobs.html", "Búsqueda de empleos", jobSearchData{Query: query})
}

func (p pages) admin(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, "pages/admin.html", "Panel de empresa", nil)
}

func (p pages) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := p.csrf.EnsureToken(sess)
	if err != nil {
		p.logger.Warn("issue csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Identity:    sess.Identity(),
		Data:        data,
	}
	if err := p.templates.Render(w, name, viewData); err != nil {
		p.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
