package handlers

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"home",
	"login",
	"forgot_password",
	"update_password",
	"characters",
	"chapters",
	"not_found",
	"loading",
	"error",
}

var templates = mustParseTemplates()

func mustParseTemplates() map[string]*template.Template {
	set := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		set[name] = template.Must(template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return set
}

// page is the data every template receives.
type page struct {
	Title    string
	Base     string
	Identity *backend.Identity

	Error   string
	Success string

	// Refresh reloads the page at this URL after a second.
	Refresh string
	// AwaitLink posts the URL fragment to /auth/link as soon as the page loads.
	AwaitLink bool

	Data any
}

func render(ctx context.Context, w http.ResponseWriter, status int, name string, p page) {
	tmpl, ok := templates[name]
	if !ok {
		logging.FromContext(ctx).Error("unknown template", "template", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	p.Base = basePath(ctx)
	p.Identity = identity(ctx)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		logging.FromContext(ctx).Error("failed to render template", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(ctx).Warn("failed to write response", "error", err)
	}
}

func renderError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	render(ctx, w, status, "error", page{Title: http.StatusText(status), Error: message})
}

// redirect sends a see-other to path below the base path.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, fmt.Sprintf("%s%s", basePath(r.Context()), path), http.StatusSeeOther)
}
