// Package service provides the dashboard service that implements the
// dependencies required by the HTTP handlers and the scheduler.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/mq/queue"
	"github.com/variantgroup/dashboard/internal/adapters/mq/worker"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// Publisher receives refresh job events.
type Publisher interface {
	Publish(ctx context.Context, e jobs.Event)
}

// ChartMetric is a metric plotted on the dashboards.
type ChartMetric struct {
	Metric  string        `json:"metric"`
	Display string        `json:"display"`
	Format  metric.Format `json:"format"`
}

// Dashboard is a landing page entry.
type Dashboard struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Enabled bool   `json:"enabled"`
}

// FilterOptions are the selectable filter values.
type FilterOptions struct {
	BCOptions     []string `json:"bc_options"`
	CohortOptions []string `json:"cohort_options"`
	DefaultBC     string   `json:"default_bc"`
	DefaultCohort string   `json:"default_cohort"`
	DefaultPlan   string   `json:"default_plan"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, jobs.Event) {}

// Service implements the dashboard operations.
type Service struct {
	mu sync.RWMutex

	warehouse    warehouse.Warehouse
	cache        *cache.Cache
	catalog      *metric.Catalog
	chartMetrics []ChartMetric
	dashboards   []Dashboard
	filters      FilterOptions
	publisher    Publisher

	inflight jobs.InFlight
	queue    queue.Queue
	pool     *worker.Pool
	cancel   context.CancelFunc

	workerCount int
	queueSize   int
	jobTimeout  time.Duration
	now         func() time.Time

	jobsMu   sync.RWMutex
	lastJobs map[jobs.Kind]jobs.Job

	started bool
	logger  logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	empty, _ := metric.NewCatalog(nil)
	s := &Service{
		catalog:     empty,
		publisher:   nopPublisher{},
		workerCount: 1,
		queueSize:   16,
		jobTimeout:  30 * time.Minute,
		now:         time.Now,
		lastJobs:    make(map[jobs.Kind]jobs.Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start creates the refresh queue and starts its workers. Jobs do not
// inherit ctx's cancellation; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.inflight = jobs.NewInFlight()
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithPublisher(publisherFunc(s.record)),
		worker.WithReleaser(s.inflight),
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithClock(s.now),
	)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "dashboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop closes the refresh queue and waits for running jobs until ctx is
// done. Jobs still running after that are cancelled, and queued jobs that
// never ran are failed with ErrStopped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping dashboard service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.abandonQueued(context.WithoutCancel(ctx))
	s.started = false
	s.logger.Info(ctx, "dashboard service stopped")
}

// Catalog returns the metric catalog.
func (s *Service) Catalog() *metric.Catalog { return s.catalog }

// ChartMetrics returns the plotted metrics.
func (s *Service) ChartMetrics() []ChartMetric { return s.chartMetrics }

// Filters returns the filter options.
func (s *Service) Filters() FilterOptions { return s.filters }

type publisherFunc func(context.Context, jobs.Event)

func (f publisherFunc) Publish(ctx context.Context, e jobs.Event) { f(ctx, e) }

// record keeps the latest state of every job kind and forwards the event.
// abandonQueued fails the jobs left in the queue and frees their kinds.
func (s *Service) abandonQueued(ctx context.Context) {
	s.jobsMu.RLock()
	var queued []jobs.Job
	for _, j := range s.lastJobs {
		if j.State == jobs.StateQueued {
			queued = append(queued, j)
		}
	}
	s.jobsMu.RUnlock()

	for _, j := range queued {
		s.inflight.Release(ctx, j.Kind)
		s.record(ctx, jobs.NewEvent(j.Finish(s.now(), ErrStopped)))
		s.logger.Warn(ctx, "refresh job dropped at shutdown",
			logger.String("job_id", j.ID),
			logger.String("kind", string(j.Kind)),
		)
	}
}

func (s *Service) record(ctx context.Context, e jobs.Event) {
	s.jobsMu.Lock()
	s.lastJobs[e.Job.Kind] = e.Job
	s.jobsMu.Unlock()
	s.publisher.Publish(ctx, e)
}
