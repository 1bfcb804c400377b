// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file and environment variables.
// - Validation errors wrap ErrInvalidConfig.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text for local runs or json for the serving platform.
	LogFormat string `koanf:"log_format"`

	// Addr is the HTTP listen address. PORT overrides the port.
	Addr string `koanf:"addr"`
	// AppPath is the path prefix the UI is mounted under.
	AppPath string `koanf:"app_path"`
	// AllowedOrigins lists websocket origins; "*" accepts any origin.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// Warehouse selects the data backend: bigquery or memory.
	Warehouse    string `koanf:"warehouse"`
	ProjectID    string `koanf:"project_id"`
	Location     string `koanf:"location"`
	Dataset      string `koanf:"dataset"`
	StagingTable string `koanf:"staging_table"`
	SourceTable  string `koanf:"source_table"`
	// QueryTimeoutSeconds bounds a single warehouse query.
	QueryTimeoutSeconds int `koanf:"query_timeout_seconds"`

	// CacheBackend selects the result cache store: gcs or memory.
	CacheBackend string `koanf:"cache_backend"`
	// CacheBucket is the object storage bucket (GCS_CACHE_BUCKET).
	CacheBucket string `koanf:"cache_bucket"`
	CachePrefix string `koanf:"cache_prefix"`
	// CacheTTLMinutes expires cached results; 0 keeps them until the next refresh.
	CacheTTLMinutes int `koanf:"cache_ttl_minutes"`

	// SessionSecret signs the session cookie. Generated at startup when empty.
	SessionSecret   string `koanf:"session_secret"`
	SessionTTLHours int    `koanf:"session_ttl_hours"`
	CookieSecure    bool   `koanf:"cookie_secure"`
	// LoginRatePerMinute and LoginBurst throttle login attempts per client.
	LoginRatePerMinute int  `koanf:"login_rate_per_minute"`
	LoginBurst         int  `koanf:"login_burst"`
	ShowDemoLogins     bool `koanf:"show_demo_logins"`

	// TrustedProxyHops is how many proxies append to X-Forwarded-For; the
	// login throttle keys on the entry that far from the right. 0 uses the
	// peer address.
	TrustedProxyHops int `koanf:"trusted_proxy_hops"`

	// RefreshSchedule is a cron spec for automatic refreshes; empty disables.
	RefreshSchedule  string `koanf:"refresh_schedule"`
	RefreshQueueSize int    `koanf:"refresh_queue_size"`
	RefreshWorkers   int    `koanf:"refresh_workers"`

	Users map[string]User `koanf:"users"`

	Metrics       []Metric      `koanf:"metrics"`
	ChartMetrics  []ChartMetric `koanf:"chart_metrics"`
	BCOptions     []string      `koanf:"bc_options"`
	CohortOptions []string      `koanf:"cohort_options"`
	DefaultBC     string        `koanf:"default_bc"`
	DefaultCohort string        `koanf:"default_cohort"`
	DefaultPlan   string        `koanf:"default_plan"`
	Dashboards    []Dashboard   `koanf:"dashboards"`
}

// User is a dashboard login. Password is hashed at startup when
// PasswordHash is empty.
type User struct {
	Name         string `koanf:"name"`
	Role         string `koanf:"role"`
	Password     string `koanf:"password"`
	PasswordHash string `koanf:"password_hash"`
}

// Metric describes a warehouse metric column.
type Metric struct {
	Key     string `koanf:"key"`
	Display string `koanf:"display"`
	Format  string `koanf:"format"`
	Suffix  string `koanf:"suffix"`
}

// ChartMetric selects a metric to plot.
type ChartMetric struct {
	Metric  string `koanf:"metric"`
	Display string `koanf:"display"`
	Format  string `koanf:"format"`
}

// Dashboard is an entry on the landing page.
type Dashboard struct {
	Name    string `koanf:"name"`
	Path    string `koanf:"path"`
	Enabled bool   `koanf:"enabled"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",

		Addr:           "0.0.0.0:8080",
		AppPath:        "/app",
		AllowedOrigins: []string{"*"},

		Warehouse:           "bigquery",
		Location:            "US",
		Dataset:             "variant_analytics",
		StagingTable:        "plan_metrics_staging",
		SourceTable:         "plan_metrics",
		QueryTimeoutSeconds: 120,

		CacheBackend:    "gcs",
		CachePrefix:     "dashboard-cache",
		CacheTTLMinutes: 0,

		SessionTTLHours:    24,
		CookieSecure:       true,
		LoginRatePerMinute: 10,
		LoginBurst:         5,
		TrustedProxyHops:   1,

		RefreshSchedule:  "",
		RefreshQueueSize: 16,
		RefreshWorkers:   1,

		Users: map[string]User{
			"admin":  {Name: "Administrator", Role: "admin", Password: "admin123"},
			"viewer": {Name: "Viewer", Role: "viewer", Password: "viewer123"},
		},

		Metrics: []Metric{
			{Key: "Rebills", Display: "Rebills", Format: "number"},
			{Key: "Rebill_Rate", Display: "Rebill Rate", Format: "percent", Suffix: " (%)"},
			{Key: "Gross_Revenue", Display: "Gross Revenue", Format: "dollar", Suffix: " ($)"},
			{Key: "Net_Revenue", Display: "Net Revenue", Format: "dollar", Suffix: " ($)"},
			{Key: "Refund_Rate", Display: "Refund Rate", Format: "percent", Suffix: " (%)"},
			{Key: "ARPU", Display: "ARPU", Format: "dollar", Suffix: " ($)"},
		},
		ChartMetrics: []ChartMetric{
			{Metric: "Gross_Revenue", Display: "Gross Revenue", Format: "dollar"},
			{Metric: "Net_Revenue", Display: "Net Revenue", Format: "dollar"},
			{Metric: "Rebill_Rate", Display: "Rebill Rate", Format: "percent"},
			{Metric: "Rebills", Display: "Rebills", Format: "number"},
		},
		BCOptions:     []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"},
		CohortOptions: []string{"Daily", "Weekly", "Monthly"},
		DefaultBC:     "4",
		DefaultCohort: "Weekly",
		DefaultPlan:   "",
		Dashboards: []Dashboard{
			{Name: "ICARUS - Plan (Historical)", Path: "icarus", Enabled: true},
			{Name: "ICARUS - Plan (Live)", Enabled: false},
			{Name: "HERMES - App Overview", Enabled: false},
		},
	}
}
