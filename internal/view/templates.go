package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/bolsa-empleo/portal/internal/shared"
	"github.com/bolsa-empleo/portal/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	publicAPI string
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Identity    *shared.Identity
	PublicAPI   string
	Data        any
}

// NewEngine parses the embedded templates. publicAPI is the browser-facing
// backend URL used for direct asset links.
func NewEngine(publicAPI string) (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, publicAPI: strings.TrimRight(publicAPI, "/")}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if data.PublicAPI == "" {
		data.PublicAPI = e.publicAPI
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
