package service

import (
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWarehouse sets the data source.
func WithWarehouse(w warehouse.Warehouse) Option {
	return func(s *Service) {
		s.warehouse = w
	}
}

// WithCache sets the result cache. Without one every load hits the warehouse.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithCatalog sets the metric catalog.
func WithCatalog(c *metric.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithChartMetrics sets the metrics plotted on dashboards, in display order.
func WithChartMetrics(cms []ChartMetric) Option {
	return func(s *Service) {
		s.chartMetrics = cms
	}
}

// WithDashboards sets the landing page entries.
func WithDashboards(ds []Dashboard) Option {
	return func(s *Service) {
		s.dashboards = ds
	}
}

// WithFilterOptions sets the selectable BC and cohort values and defaults.
func WithFilterOptions(fo FilterOptions) Option {
	return func(s *Service) {
		s.filters = fo
	}
}

// WithPublisher receives refresh job events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the refresh queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJobTimeout bounds a single refresh job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
