package pages

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	Index   = "index.html"
	Landing = "landing.html"
)

type data struct {
	ConfigurationError *string
}

// Pages renders the demo's HTML pages. The template set is parsed once and
// only read afterwards.
type Pages struct {
	tmpl   *template.Template
	logger *zap.Logger
}

func New(logger *zap.Logger) (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing templates")
	}
	return &Pages{tmpl: tmpl, logger: logger}, nil
}

// Handler renders the named template unconditionally.
func (p *Pages) Handler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := p.tmpl.ExecuteTemplate(&buf, name, data{}); err != nil {
			p.logger.Error("error rendering page", zap.String("page", name), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if _, err := buf.WriteTo(w); err != nil {
			p.logger.Error("error writing response", zap.Error(err))
		}
	}
}

// Static serves the embedded assets; mount it under /static/.
func Static() (http.Handler, error) {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, errors.Wrap(err, "opening static assets")
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub))), nil
}
