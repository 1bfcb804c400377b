// Package scheduler requests refresh jobs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// RequestedBy identifies scheduled jobs.
const RequestedBy = "scheduler"

var ErrInvalidSchedule = errors.New("invalid refresh schedule")

// Requester queues refresh jobs.
type Requester interface {
	RequestRefresh(ctx context.Context, kind jobs.Kind, requestedBy string) (jobs.Job, error)
}

// Scheduler requests a refresh on every tick of a cron spec.
type Scheduler struct {
	cron     *cron.Cron
	entry    cron.EntryID
	req      Requester
	spec     string
	kind     jobs.Kind
	location *time.Location
	logger   logger.Logger
}

// New parses spec (standard five fields or a descriptor such as
// "@every 6h") and returns a stopped scheduler.
func New(spec string, req Requester, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		req:      req,
		spec:     spec,
		kind:     jobs.KindAll,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}

	s.cron = cron.New(cron.WithLocation(s.location))
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, spec, err)
	}
	s.entry = id
	return s, nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info(ctx, "refresh scheduler started",
		logger.String("schedule", s.spec),
		logger.String("kind", string(s.kind)),
		logger.String("next", s.Next().Format(time.RFC3339)),
	)
}

// Stop stops the cron loop and waits for a running tick or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info(ctx, "refresh scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn(ctx, "refresh scheduler stop timed out", logger.Error(ctx.Err()))
	}
}

// Next returns the next tick, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) tick() {
	_, _ = s.Trigger(context.Background())
}

// Trigger requests a refresh now. A busy refresh is logged and skipped.
func (s *Scheduler) Trigger(ctx context.Context) (jobs.Job, error) {
	j, err := s.req.RequestRefresh(ctx, s.kind, RequestedBy)
	switch {
	case errors.Is(err, jobs.ErrBusy):
		s.logger.Info(ctx, "scheduled refresh skipped, refresh in progress", logger.String("kind", string(s.kind)))
	case err != nil:
		s.logger.Error(ctx, "scheduled refresh failed", logger.String("kind", string(s.kind)), logger.Error(err))
	default:
		s.logger.Info(ctx, "scheduled refresh queued", logger.String("job_id", j.ID))
	}
	return j, err
}
