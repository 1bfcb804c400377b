package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// RequestRefresh queues a refresh job. It returns jobs.ErrBusy when a job
// of an overlapping kind is already queued or running.
func (s *Service) RequestRefresh(ctx context.Context, kind jobs.Kind, requestedBy string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return jobs.Job{}, ErrNotStarted
	}

	if !s.inflight.Claim(ctx, kind) {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrBusy, kind)
	}
	j := jobs.New(kind, requestedBy, s.now())
	s.record(ctx, jobs.NewEvent(j))

	if err := s.queue.Enqueue(ctx, j); err != nil {
		s.inflight.Release(ctx, kind)
		s.record(ctx, jobs.NewEvent(j.Finish(s.now(), err)))
		return jobs.Job{}, fmt.Errorf("%w: %w", jobs.ErrBusy, err)
	}
	s.logger.Info(ctx, "refresh queued",
		logger.String("job_id", j.ID),
		logger.String("kind", string(kind)),
		logger.String("requested_by", requestedBy),
	)
	return j, nil
}

// Jobs returns the latest job of each kind.
func (s *Service) Jobs() []jobs.Job {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	out := make([]jobs.Job, 0, len(s.lastJobs))
	for _, k := range []jobs.Kind{jobs.KindAll, jobs.KindBigQuery, jobs.KindGCS} {
		if j, ok := s.lastJobs[k]; ok {
			out = append(out, j)
		}
	}
	return out
}

// RunJob performs a refresh. It is called by the worker pool.
func (s *Service) RunJob(ctx context.Context, j jobs.Job) error {
	for _, step := range j.Kind.Steps() {
		var err error
		switch step {
		case jobs.KindBigQuery:
			err = s.refreshWarehouse(ctx)
		case jobs.KindGCS:
			err = s.refreshCache(ctx)
		default:
			err = fmt.Errorf("%w: %s", jobs.ErrUnknownKind, step)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	return nil
}

func (s *Service) refreshWarehouse(ctx context.Context) error {
	if err := s.warehouse.RefreshStaging(ctx); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	return s.cache.StampBigQuery(ctx, s.now().UTC())
}

// refreshCache drops cached results and warms the loads every dashboard
// visit starts with.
func (s *Service) refreshCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	n, err := s.cache.Invalidate(ctx)
	if err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	s.logger.Info(ctx, "cache invalidated", logger.Int("objects", n))

	if _, err := s.DateBounds(ctx); err != nil && !errors.Is(err, warehouse.ErrNoData) {
		return fmt.Errorf("warm date bounds: %w", err)
	}
	if _, err := s.PlanGroups(ctx, warehouse.StatusActive); err != nil {
		return fmt.Errorf("warm plans: %w", err)
	}
	return s.cache.StampGCS(ctx, s.now().UTC())
}

// CacheInfo returns the last refresh times.
func (s *Service) CacheInfo(ctx context.Context) (cache.Info, error) {
	if s.cache == nil {
		return cache.Info{}, nil
	}
	return s.cache.Info(ctx)
}

// DashboardRow is a landing page table row. Refresh times are only shown
// for enabled dashboards.
type DashboardRow struct {
	Dashboard
	LastBQRefresh  *time.Time `json:"last_bq_refresh,omitempty"`
	LastGCSRefresh *time.Time `json:"last_gcs_refresh,omitempty"`
}

// Home is the landing page content.
type Home struct {
	Rows       []DashboardRow `json:"rows"`
	Disabled   []string       `json:"disabled"`
	CacheError string         `json:"cache_error,omitempty"`
}

// Dashboards lists the configured dashboards with cache times. A cache
// metadata failure is reported in Home.CacheError rather than failing.
func (s *Service) Dashboards(ctx context.Context) Home {
	var h Home
	info, err := s.CacheInfo(ctx)
	if err != nil {
		s.logger.Warn(ctx, "cache info unavailable", logger.Error(err))
		h.CacheError = err.Error()
	}
	h.Rows = make([]DashboardRow, 0, len(s.dashboards))
	h.Disabled = []string{}
	for _, d := range s.dashboards {
		row := DashboardRow{Dashboard: d}
		if d.Enabled {
			row.LastBQRefresh = info.LastBQRefresh
			row.LastGCSRefresh = info.LastGCSRefresh
		} else {
			h.Disabled = append(h.Disabled, d.Name)
		}
		h.Rows = append(h.Rows, row)
	}
	return h
}
