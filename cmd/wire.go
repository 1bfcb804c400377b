package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/http/api"
	"github.com/variantgroup/dashboard/internal/adapters/http/pages"
	"github.com/variantgroup/dashboard/internal/adapters/http/ws"
	"github.com/variantgroup/dashboard/internal/adapters/objectstore"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/config"
	"github.com/variantgroup/dashboard/internal/domain/auth"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/scheduler"
	"github.com/variantgroup/dashboard/pkg/metrics"
)

// demoWeeks is how much history the memory warehouse is seeded with.
const demoWeeks = 26

// components are the long-lived parts of the server.
type components struct {
	store     *auth.Store
	limiter   *api.Limiter
	svc       *service.Service
	hub       *ws.Hub
	scheduler *scheduler.Scheduler
	warehouse warehouse.Warehouse
	objects   objectstore.Store
	handler   http.Handler
}

// build wires every component from cfg. Nothing is started.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	catalog, err := newCatalog(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newAuthStore(cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := api.NewSessions(store, api.SessionConfig{
		Secret: cfg.SessionSecret,
		Path:   cfg.AppPath,
		MaxAge: time.Duration(cfg.SessionTTLHours) * time.Hour,
		Secure: cfg.CookieSecure,
	})
	if err != nil {
		return nil, err
	}

	wh, err := newWarehouse(ctx, cfg, catalog)
	if err != nil {
		return nil, err
	}
	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		_ = wh.Close()
		return nil, err
	}

	c := &components{
		store:     store,
		limiter:   api.NewLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst, api.WithTrustedHops(cfg.TrustedProxyHops)),
		hub:       ws.NewHub(ws.WithAllowedOrigins(cfg.AllowedOrigins)),
		warehouse: wh,
		objects:   objects,
	}
	c.svc = service.New(
		service.WithWarehouse(wh),
		service.WithCache(cache.New(objects,
			cache.WithPrefix(cfg.CachePrefix),
			cache.WithTTL(time.Duration(cfg.CacheTTLMinutes)*time.Minute),
		)),
		service.WithCatalog(catalog),
		service.WithChartMetrics(chartMetrics(cfg)),
		service.WithDashboards(dashboards(cfg)),
		service.WithFilterOptions(service.FilterOptions{
			BCOptions:     cfg.BCOptions,
			CohortOptions: cfg.CohortOptions,
			DefaultBC:     cfg.DefaultBC,
			DefaultCohort: cfg.DefaultCohort,
			DefaultPlan:   cfg.DefaultPlan,
		}),
		service.WithPublisher(c.hub),
		service.WithWorkerCount(cfg.RefreshWorkers),
		service.WithQueueSize(cfg.RefreshQueueSize),
	)

	if cfg.RefreshSchedule != "" {
		if c.scheduler, err = scheduler.New(cfg.RefreshSchedule, c.svc); err != nil {
			c.close()
			return nil, err
		}
	}

	mux := http.NewServeMux()
	api.NewServer(c.svc, sessions,
		api.WithAppPath(cfg.AppPath),
		api.WithLiveUpdates(c.hub),
	).Register(ctx, mux)
	pages.New(c.svc, sessions, c.limiter,
		pages.WithAppPath(cfg.AppPath),
		pages.WithDemoLogins(cfg.ShowDemoLogins),
		pages.WithSecureCookies(cfg.CookieSecure),
	).Register(ctx, mux)
	c.handler = mux
	return c, nil
}

// close releases backend clients.
func (c *components) close() {
	if c.warehouse != nil {
		_ = c.warehouse.Close()
	}
	if c.objects != nil {
		_ = c.objects.Close()
	}
}

func newCatalog(cfg *config.Config) (*metric.Catalog, error) {
	defs := make([]metric.Definition, 0, len(cfg.Metrics))
	for _, m := range cfg.Metrics {
		defs = append(defs, metric.Definition{
			Key:     m.Key,
			Display: m.Display,
			Format:  metric.Format(m.Format),
			Suffix:  m.Suffix,
		})
	}
	return metric.NewCatalog(defs)
}

func chartMetrics(cfg *config.Config) []service.ChartMetric {
	out := make([]service.ChartMetric, 0, len(cfg.ChartMetrics))
	for _, cm := range cfg.ChartMetrics {
		format := metric.Format(cm.Format)
		if format == "" {
			format = metric.FormatNumber
		}
		out = append(out, service.ChartMetric{Metric: cm.Metric, Display: cm.Display, Format: format})
	}
	return out
}

func dashboards(cfg *config.Config) []service.Dashboard {
	out := make([]service.Dashboard, 0, len(cfg.Dashboards))
	for _, d := range cfg.Dashboards {
		out = append(out, service.Dashboard{Name: d.Name, Path: d.Path, Enabled: d.Enabled})
	}
	return out
}

func newAuthStore(cfg *config.Config) (*auth.Store, error) {
	users := make([]auth.User, 0, len(cfg.Users))
	for id, u := range cfg.Users {
		users = append(users, auth.User{
			ID:           id,
			Name:         u.Name,
			Role:         u.Role,
			Password:     u.Password,
			PasswordHash: u.PasswordHash,
		})
	}
	return auth.NewStore(users,
		auth.WithTTL(time.Duration(cfg.SessionTTLHours)*time.Hour),
		auth.WithSessionObserver(metrics.UpdateSessionsActive),
	)
}

func newWarehouse(ctx context.Context, cfg *config.Config, catalog *metric.Catalog) (warehouse.Warehouse, error) {
	switch cfg.Warehouse {
	case "memory":
		rows := warehouse.DemoRows(catalog, cfg.BCOptions, cfg.CohortOptions, time.Now().UTC(), demoWeeks)
		return warehouse.NewMemory(catalog, rows), nil
	case "bigquery":
		return warehouse.NewBigQuery(ctx, warehouse.BigQueryConfig{
			ProjectID:    cfg.ProjectID,
			Location:     cfg.Location,
			Dataset:      cfg.Dataset,
			StagingTable: cfg.StagingTable,
			SourceTable:  cfg.SourceTable,
			QueryTimeout: time.Duration(cfg.QueryTimeoutSeconds) * time.Second,
		}, catalog)
	default:
		return nil, fmt.Errorf("%w: unknown warehouse %q", config.ErrInvalidConfig, cfg.Warehouse)
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch cfg.CacheBackend {
	case "memory":
		return objectstore.NewMemory(), nil
	case "gcs":
		return objectstore.NewGCS(ctx, cfg.CacheBucket)
	default:
		return nil, fmt.Errorf("%w: unknown cache_backend %q", config.ErrInvalidConfig, cfg.CacheBackend)
	}
}
