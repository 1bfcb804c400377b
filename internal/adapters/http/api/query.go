package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/domain/metric"
)

// DateParam is the layout of from and to query parameters.
const DateParam = "2006-01-02"

// ParseQuery reads a dashboard filter from URL values. bc and cohort fall
// back to the configured defaults and metrics to the whole catalog. List
// parameters may repeat or hold comma separated values.
func ParseQuery(v url.Values, filters service.FilterOptions, catalog *metric.Catalog) (service.Query, error) {
	q := service.Query{
		BC:      firstNonEmpty(v.Get("bc"), filters.DefaultBC),
		Cohort:  firstNonEmpty(v.Get("cohort"), filters.DefaultCohort),
		Plans:   ListParam(v, "plans"),
		Metrics: ListParam(v, "metrics"),
	}
	if len(q.Metrics) == 0 && !v.Has("metrics") {
		q.Metrics = catalog.Keys()
	}

	var err error
	if q.From, err = parseDate(v.Get("from")); err != nil {
		return service.Query{}, fmt.Errorf("%w: from: %w", ErrBadRequest, err)
	}
	if q.To, err = parseDate(v.Get("to")); err != nil {
		return service.Query{}, fmt.Errorf("%w: to: %w", ErrBadRequest, err)
	}
	return q, nil
}

// ParseTable reads the table parameter: regular (default) or crystal_ball.
func ParseTable(s string) (warehouse.TableType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regular":
		return warehouse.TableRegular, nil
	case "crystal_ball", "crystal ball", "cb":
		return warehouse.TableCrystalBall, nil
	default:
		return "", fmt.Errorf("%w: unknown table %q", ErrBadRequest, s)
	}
}

// ListParam collects every value of key, splitting on commas.
func ListParam(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateParam, s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
