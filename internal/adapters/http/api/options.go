package api

import (
	"net/http"

	"github.com/variantgroup/dashboard/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithAppPath sets the prefix the UI and API are mounted under.
func WithAppPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.appPath = path
		}
	}
}

// WithServiceName sets the name reported by the liveness endpoint.
func WithServiceName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLiveUpdates serves h, the websocket hub, at <app path>/ws for
// signed-in users.
func WithLiveUpdates(h http.Handler) Option {
	return func(s *Server) {
		s.live = h
	}
}
