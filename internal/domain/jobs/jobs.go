// Package jobs defines refresh jobs and the guard that keeps at most one
// job of each kind in flight.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects what a refresh job rebuilds.
type Kind string

const (
	// KindBigQuery rebuilds the staging table from the source table.
	KindBigQuery Kind = "bigquery"
	// KindGCS drops cached results and warms the common ones again.
	KindGCS Kind = "gcs"
	// KindAll runs KindBigQuery then KindGCS.
	KindAll Kind = "all"
)

// State is a job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var (
	ErrBusy        = errors.New("refresh already in progress")
	ErrUnknownKind = errors.New("unknown refresh kind")
)

// ParseKind maps a request parameter onto a Kind. Empty means all.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBigQuery, KindGCS, KindAll:
		return k, nil
	case "":
		return KindAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Steps returns the kinds a job runs, in order.
func (k Kind) Steps() []Kind {
	if k == KindAll {
		return []Kind{KindBigQuery, KindGCS}
	}
	return []Kind{k}
}

// Job is a requested refresh.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	RequestedBy string     `json:"requested_by"`
	State       State      `json:"state"`
	Error       string     `json:"error,omitempty"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// New returns a queued job.
func New(kind Kind, requestedBy string, now time.Time) Job {
	return Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		RequestedBy: requestedBy,
		State:       StateQueued,
		QueuedAt:    now,
	}
}

// Start marks the job running.
func (j Job) Start(now time.Time) Job {
	j.State = StateRunning
	j.StartedAt = &now
	return j
}

// Finish marks the job succeeded, or failed when err is non-nil.
func (j Job) Finish(now time.Time, err error) Job {
	j.FinishedAt = &now
	if err != nil {
		j.State = StateFailed
		j.Error = err.Error()
		return j
	}
	j.State = StateSucceeded
	return j
}

// Duration is the time spent running, or zero if the job has not finished.
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// Event is the live-update message published for every state change.
type Event struct {
	Type string `json:"type"`
	Job  Job    `json:"job"`
}

// EventType is the Event.Type of refresh updates.
const EventType = "refresh"

// NewEvent wraps j for publishing.
func NewEvent(j Job) Event { return Event{Type: EventType, Job: j} }
