package pages

import "github.com/variantgroup/dashboard/pkg/logger"

// Option configures a Handler.
type Option func(*Handler)

// WithAppPath sets the prefix pages are mounted under.
func WithAppPath(path string) Option {
	return func(h *Handler) {
		if path != "" {
			h.appPath = path
		}
	}
}

// WithDemoLogins shows the demo credentials on the login page.
func WithDemoLogins(show bool) Option {
	return func(h *Handler) {
		h.demoLogins = show
	}
}

// WithSecureCookies marks the theme cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) {
		h.secure = secure
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}
