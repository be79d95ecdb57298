package scheduler

import (
	"context"
	"sync"
	"time"
)

// State is a job's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is a point-in-time view of a job.
type Status struct {
	ID          string     `json:"id"`
	IncidentID  string     `json:"incident_id"`
	State       State      `json:"state"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Handle tracks one submitted job.
type Handle struct {
	ID         string
	IncidentID string

	done chan struct{}

	mu          sync.Mutex
	state       State
	err         error
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
}

func newHandle(id, incidentID string, now time.Time) *Handle {
	return &Handle{
		ID:          id,
		IncidentID:  incidentID,
		done:        make(chan struct{}),
		state:       StatePending,
		submittedAt: now,
	}
}

func (h *Handle) start(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateRunning
	h.startedAt = now
}

func (h *Handle) finish(now time.Time, state State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	h.err = err
	h.finishedAt = now
	close(h.done)
}

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt.IsZero() {
		return h.finishedAt.Sub(h.submittedAt)
	}
	return h.finishedAt.Sub(h.startedAt)
}

// Done is closed when the job finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job finishes or ctx ends. It returns the job's
// error, or ctx's error if ctx ended first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the job.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{
		ID:          h.ID,
		IncidentID:  h.IncidentID,
		State:       h.state,
		SubmittedAt: h.submittedAt,
	}
	if h.err != nil {
		st.Error = h.err.Error()
	}
	if !h.startedAt.IsZero() {
		t := h.startedAt
		st.StartedAt = &t
	}
	if !h.finishedAt.IsZero() {
		t := h.finishedAt
		st.FinishedAt = &t
	}
	return st
}
