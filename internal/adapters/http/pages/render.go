package pages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/variantgroup/dashboard/internal/domain/auth"
	"github.com/variantgroup/dashboard/internal/domain/chart"
	"github.com/variantgroup/dashboard/internal/domain/theme"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// Alert levels match the theme's .alert-* classes.
const (
	levelWarning = "warning"
	levelDanger  = "danger"
)

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"legend": chart.LegendHTML,
	"cell": func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	},
	"when": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "--"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}

var templates = parseTemplates("login", "home", "icarus", "error")

func parseTemplates(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html"))
	}
	return out
}

// Page is the data every template receives.
type Page struct {
	Title      string
	AppPath    string
	Theme      theme.Name
	OtherTheme theme.Name
	Tabulator  string
	Session    *auth.Session
}

// Alert is a styled message pane.
type Alert struct {
	Level   string
	Title   string
	Message string
}

type errorView struct {
	Page
	Alert Alert
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request, title string) Page {
	th := h.theme(w, r)
	other := theme.Light
	if th == theme.Light {
		other = theme.Dark
	}
	p := Page{
		Title:      title,
		AppPath:    h.appPath,
		Theme:      th,
		OtherTheme: other,
		Tabulator:  theme.TabulatorTheme(th),
	}
	if sess, err := h.sessions.Current(r); err == nil {
		p.Session = &sess
	}
	return p
}

// render executes a page into a buffer first so template failures still
// produce a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error(r.Context(), "render page", logger.String("page", name), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, a Alert) {
	h.render(w, r, status, "error", errorView{Page: h.page(w, r, a.Title), Alert: a})
}

func errorAlert(title string, err error) Alert {
	return Alert{Level: levelDanger, Title: title, Message: fmt.Sprint(err)}
}
