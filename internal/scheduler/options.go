package scheduler

import (
	"time"

	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithKind sets the refresh kind requested on each tick.
func WithKind(kind jobs.Kind) Option {
	return func(s *Scheduler) {
		if kind != "" {
			s.kind = kind
		}
	}
}

// WithLocation sets the time zone the cron spec is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
