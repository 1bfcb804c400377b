// Package worker runs refresh jobs taken off the queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/pkg/logger"
	"github.com/variantgroup/dashboard/pkg/metrics"
)

const (
	defaultJobTimeout   = 30 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Runner performs the work of a job.
type Runner interface {
	RunJob(ctx context.Context, j jobs.Job) error
}

// Publisher receives job state changes.
type Publisher interface {
	Publish(ctx context.Context, e jobs.Event)
}

// Releaser frees a job kind once its job finished.
type Releaser interface {
	Release(ctx context.Context, kind jobs.Kind)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan jobs.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, jobs.Event) {}

type nopReleaser struct{}

func (nopReleaser) Release(context.Context, jobs.Kind) {}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	runner     Runner
	publisher  Publisher
	releaser   Releaser
	name       string
	jobTimeout time.Duration
	now        func() time.Time

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		runner:     runner,
		publisher:  nopPublisher{},
		releaser:   nopReleaser{},
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		now:        time.Now,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobCh := w.queue.Dequeue(ctx)
	for {
		// A stopping worker takes no further jobs, even when one is ready.
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobCh:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "refresh job failed",
					logger.String("job_id", j.ID),
					logger.String("kind", string(j.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job and reports every state change.
func (w *InMemoryWorker) process(ctx context.Context, j jobs.Job) (err error) {
	j = j.Start(w.now())
	w.publisher.Publish(ctx, jobs.NewEvent(j))
	w.logger.Info(ctx, "refresh job started",
		logger.String("job_id", j.ID),
		logger.String("kind", string(j.Kind)),
		logger.String("requested_by", j.RequestedBy),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		j = j.Finish(w.now(), err)
		metrics.RecordRefresh(string(j.Kind), string(j.State),
			float64(j.Duration().Milliseconds()), float64(j.FinishedAt.Unix()))
		// Release before publishing so a client reacting to the final state can
		// request the same kind again. Both run even when ctx is gone.
		detached := context.WithoutCancel(ctx)
		w.releaser.Release(detached, j.Kind)
		w.publisher.Publish(detached, jobs.NewEvent(j))
		if err == nil {
			w.logger.Info(ctx, "refresh job finished",
				logger.String("job_id", j.ID),
				logger.String("kind", string(j.Kind)),
				logger.Duration("took", j.Duration()),
			)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	return w.runner.RunJob(runCtx, j)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing opts.
func NewPool(workerCount int, queue Queue, runner Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(queue, runner, wopts...)
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Shutdown closes the queue and waits for the workers to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for _, w := range p.workers {
		close(w.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
