package api

import (
	"errors"
	"net/http"

	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/domain/auth"
	"github.com/variantgroup/dashboard/internal/domain/jobs"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("too many login attempts, try again shortly")
)

// StatusFor maps an error onto an HTTP status and a stable error code.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, service.ErrNoPlans),
		errors.Is(err, service.ErrNoMetrics),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, jobs.ErrUnknownKind):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, warehouse.ErrNoData),
		errors.Is(err, service.ErrNoActivePlans):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, jobs.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
