package config

import (
	"fmt"
	"slices"
	"strings"
)

// demoPasswords are the plain-text passwords shipped in New().
var demoPasswords = []string{"admin123", "viewer123"}

// Validate checks cross-field constraints. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	if !strings.HasPrefix(c.AppPath, "/") || c.AppPath == "/" || strings.HasSuffix(c.AppPath, "/") {
		return invalid("app_path must be a non-root path like /app, got %q", c.AppPath)
	}

	switch c.Warehouse {
	case "bigquery":
		if c.ProjectID == "" {
			return invalid("project_id (GOOGLE_CLOUD_PROJECT) is required for the bigquery warehouse")
		}
		if c.Dataset == "" || c.StagingTable == "" || c.SourceTable == "" {
			return invalid("dataset, staging_table and source_table are required")
		}
	case "memory":
	default:
		return invalid("unknown warehouse %q", c.Warehouse)
	}

	switch c.CacheBackend {
	case "gcs":
		if c.CacheBucket == "" {
			return invalid("GCS_CACHE_BUCKET must be set")
		}
	case "memory":
	default:
		return invalid("unknown cache_backend %q", c.CacheBackend)
	}

	if c.SessionTTLHours <= 0 {
		return invalid("session_ttl_hours must be positive")
	}
	if c.TrustedProxyHops < 0 {
		return invalid("trusted_proxy_hops must not be negative")
	}
	if c.RefreshQueueSize <= 0 || c.RefreshWorkers <= 0 {
		return invalid("refresh_queue_size and refresh_workers must be positive")
	}

	for id, u := range c.Users {
		if u.Role != "admin" && u.Role != "viewer" {
			return invalid("user %q has unknown role %q", id, u.Role)
		}
		if u.Password == "" && u.PasswordHash == "" {
			return invalid("user %q has no password", id)
		}
		// Demo credentials only make sense against the demo warehouse.
		if c.Warehouse == "bigquery" && u.PasswordHash == "" && slices.Contains(demoPasswords, u.Password) {
			return invalid("user %q still has the built-in demo password; set users in the config file", id)
		}
	}

	if len(c.Metrics) == 0 {
		return invalid("at least one metric is required")
	}
	keys := make([]string, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		if m.Key == "" {
			return invalid("metric key must not be empty")
		}
		if slices.Contains(keys, m.Key) {
			return invalid("duplicate metric %q", m.Key)
		}
		keys = append(keys, m.Key)
	}
	for _, cm := range c.ChartMetrics {
		if !slices.Contains(keys, cm.Metric) {
			return invalid("chart metric %q is not a configured metric", cm.Metric)
		}
	}

	if len(c.BCOptions) > 0 && !slices.Contains(c.BCOptions, c.DefaultBC) {
		return invalid("default_bc %q is not in bc_options", c.DefaultBC)
	}
	if len(c.CohortOptions) > 0 && !slices.Contains(c.CohortOptions, c.DefaultCohort) {
		return invalid("default_cohort %q is not in cohort_options", c.DefaultCohort)
	}
	return nil
}
