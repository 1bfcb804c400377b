// Package pages serves the dashboard UI: login, the landing page and the
// ICARUS historical dashboard.
package pages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/http/api"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/domain/auth"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/domain/theme"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// ThemeCookie remembers the selected theme.
const ThemeCookie = "dashboard-theme"

// Dependencies required by the page handlers.
type Dependencies interface {
	Dashboards(ctx context.Context) service.Home
	LoadFilters(ctx context.Context) (*service.FilterPanel, error)
	LoadIcarus(ctx context.Context, q service.Query, th theme.Name) (*service.Icarus, error)
	Catalog() *metric.Catalog
	Filters() service.FilterOptions
}

// Handler serves the UI pages.
type Handler struct {
	deps     Dependencies
	sessions *api.Sessions
	limiter  *api.Limiter

	appPath    string
	demoLogins bool
	secure     bool
	logger     logger.Logger
}

// New creates the page handler.
func New(deps Dependencies, sessions *api.Sessions, limiter *api.Limiter, opts ...Option) *Handler {
	h := &Handler{
		deps:     deps,
		sessions: sessions,
		limiter:  limiter,
		appPath:  "/app",
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("pages")
	}
	if h.limiter == nil {
		h.limiter = api.NewLimiter(0, 1)
	}
	return h
}

// Register attaches the UI routes to mux.
func (h *Handler) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	p := h.appPath
	mux.HandleFunc("GET "+p, api.MetricsMiddleware(h.handleIndex, "app"))
	mux.HandleFunc("GET "+p+"/{$}", api.MetricsMiddleware(h.handleIndex, "app"))
	mux.HandleFunc("GET "+p+"/login", api.MetricsMiddleware(h.handleLoginForm, "login"))
	mux.HandleFunc("POST "+p+"/login", api.MetricsMiddleware(h.handleLogin, "login"))
	mux.HandleFunc("POST "+p+"/logout", api.MetricsMiddleware(h.handleLogout, "logout"))
	mux.HandleFunc("GET "+p+"/home", api.MetricsMiddleware(h.protect(h.handleHome), "home"))
	mux.HandleFunc("GET "+p+"/icarus", api.MetricsMiddleware(h.protect(h.handleIcarus), "icarus"))
	mux.HandleFunc("GET "+p+"/theme.css", h.handleCSS)
	mux.Handle("GET "+p+"/static/", http.StripPrefix(p+"/static/", http.FileServer(StaticFS())))
}

// protect redirects to the login page when there is no session.
func (h *Handler) protect(next http.HandlerFunc) http.HandlerFunc {
	return h.sessions.RequireSession(next, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, h.appPath+"/login", http.StatusSeeOther)
	}).ServeHTTP
}

// theme resolves the theme from ?theme=, remembering it in a cookie, or
// from the cookie.
func (h *Handler) theme(w http.ResponseWriter, r *http.Request) theme.Name {
	if q := r.URL.Query().Get("theme"); q != "" {
		th := theme.Parse(q)
		http.SetCookie(w, &http.Cookie{
			Name:     ThemeCookie,
			Value:    string(th),
			Path:     h.appPath,
			MaxAge:   int((365 * 24 * time.Hour).Seconds()),
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return th
	}
	if c, err := r.Cookie(ThemeCookie); err == nil {
		return theme.Parse(c.Value)
	}
	return theme.Default
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	target := h.appPath + "/login"
	if _, err := h.sessions.Current(r); err == nil {
		target = h.appPath + "/home"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(theme.CSS(h.theme(w, r))))
}

type loginView struct {
	Page
	UserID     string
	Alert      *Alert
	DemoLogins bool
}

func (h *Handler) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Current(r); err == nil {
		http.Redirect(w, r, h.appPath+"/home", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login", loginView{Page: h.page(w, r, "Sign in"), DemoLogins: h.demoLogins})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	view := loginView{Page: h.page(w, r, "Sign in"), DemoLogins: h.demoLogins}

	if !h.limiter.AllowRequest(r) {
		view.Alert = &Alert{Level: levelDanger, Message: api.ErrRateLimited.Error()}
		h.render(w, r, http.StatusTooManyRequests, "login", view)
		return
	}

	userID := strings.TrimSpace(r.PostFormValue("username"))
	view.UserID = userID
	_, err := h.sessions.Login(w, r, userID, r.PostFormValue("password"))
	switch {
	case err == nil:
		http.Redirect(w, r, h.appPath+"/home", http.StatusSeeOther)
	case errors.Is(err, auth.ErrMissingCredentials):
		view.Alert = &Alert{Level: levelWarning, Message: "Please enter both username and password"}
		h.render(w, r, http.StatusBadRequest, "login", view)
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.logger.Info(r.Context(), "login failed", logger.String("user", userID))
		view.Alert = &Alert{Level: levelDanger, Message: "Invalid username or password"}
		h.render(w, r, http.StatusUnauthorized, "login", view)
	default:
		h.logger.Error(r.Context(), "login", logger.Error(err))
		h.renderError(w, r, http.StatusInternalServerError, errorAlert("Sign in failed", err))
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(w, r)
	http.Redirect(w, r, h.appPath+"/login", http.StatusSeeOther)
}

type homeView struct {
	Page
	Home       service.Home
	CacheAlert *Alert
	CanRefresh bool
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	p := h.page(w, r, "Dashboards")
	sess, _ := api.SessionFrom(r.Context())
	p.Session = &sess
	view := homeView{
		Page:       p,
		Home:       h.deps.Dashboards(r.Context()),
		CanRefresh: sess.IsAdmin(),
	}
	if msg := view.Home.CacheError; msg != "" {
		view.CacheAlert = &Alert{Level: levelWarning, Title: "Cache info unavailable", Message: msg}
	}
	h.render(w, r, http.StatusOK, "home", view)
}
