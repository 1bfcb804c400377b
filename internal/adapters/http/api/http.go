// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/http/swagger"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/domain/pivot"
	"github.com/variantgroup/dashboard/internal/domain/theme"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	DateBounds(ctx context.Context) (warehouse.DateBounds, error)
	LoadFilters(ctx context.Context) (*service.FilterPanel, error)
	PivotTable(ctx context.Context, q service.Query, tt warehouse.TableType) (*pivot.Table, error)
	ChartData(ctx context.Context, q service.Query, tt warehouse.TableType, th theme.Name) ([]service.ChartPanel, error)
	CacheInfo(ctx context.Context) (cache.Info, error)

	// RequestRefresh queues a refresh job; jobs.ErrBusy when one overlaps.
	RequestRefresh(ctx context.Context, kind jobs.Kind, requestedBy string) (jobs.Job, error)
	Jobs() []jobs.Job

	Catalog() *metric.Catalog
	Filters() service.FilterOptions
}

// Server wires HTTP routes for the JSON API.
type Server struct {
	deps          Dependencies
	sessions      *Sessions
	healthHandler *HealthHandler
	live          http.Handler

	appPath     string
	serviceName string
	logger      logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, sessions *Sessions, opts ...Option) *Server {
	s := &Server{
		deps:        deps,
		sessions:    sessions,
		appPath:     "/app",
		serviceName: "variant-dashboard",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	s.healthHandler = NewHealthHandler(s.serviceName)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/{$}", MetricsMiddleware(s.healthHandler.HandleLiveness, "root"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)

	prefix := s.appPath + "/api"
	mux.Handle("GET "+prefix+"/cache-info", s.protect(s.handleCacheInfo, "cache_info"))
	mux.Handle("GET "+prefix+"/jobs", s.protect(s.handleJobs, "jobs"))
	mux.Handle("GET "+prefix+"/plans", s.protect(s.handlePlans, "plans"))
	mux.Handle("GET "+prefix+"/date-bounds", s.protect(s.handleDateBounds, "date_bounds"))
	mux.Handle("GET "+prefix+"/pivot", s.protect(s.handlePivot, "pivot"))
	mux.Handle("GET "+prefix+"/charts", s.protect(s.handleCharts, "charts"))
	mux.Handle("POST "+prefix+"/refresh", s.protect(RequireAdmin(s.handleRefresh), "refresh"))

	swagger.Register(ctx, mux, prefix)

	if s.live != nil {
		// Not wrapped in MetricsMiddleware: the upgrade hijacks the connection.
		mux.Handle("GET "+s.appPath+"/ws", s.sessions.RequireSession(s.live, func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, ErrUnauthorized)
		}))
	}
}

// protect requires a session and records request metrics.
func (s *Server) protect(h http.HandlerFunc, endpoint string) http.Handler {
	guarded := s.sessions.RequireSession(h, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, ErrUnauthorized)
	})
	return MetricsMiddleware(guarded.ServeHTTP, endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before writing the status so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: http.StatusText(status)})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	msg := http.StatusText(status)
	if err != nil && status != http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail logs unexpected errors before writing the error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status, _ := StatusFor(err); status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, err)
}
