// Package scheduler runs background jobs off the request path and records
// their outcome in the incident timeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("scheduler closed")

// DefaultMaxConcurrent is the default number of jobs running at once.
const DefaultMaxConcurrent = 64

const defaultActor = "Background Job"

// Outcome is what a successful job reports back.
type Outcome struct {
	// Title and Summary become the ai_analysis timeline entry.
	Title   string
	Summary string
	// Actor defaults to "Background Job".
	Actor    string
	Metadata map[string]any
	// Data is broadcast to the incident's room.
	Data map[string]any
}

// Work is a unit of background work.
type Work func(ctx context.Context) (*Outcome, error)

// TimelineWriter appends timeline entries.
type TimelineWriter interface {
	Add(ctx context.Context, entry *models.TimelineEntry) (*models.TimelineEntry, error)
}

// Publisher broadcasts to an incident's room.
type Publisher interface {
	Broadcast(ctx context.Context, incidentID string, typ models.UpdateType, data map[string]any) int
}

// Instrumentation receives job results.
type Instrumentation interface {
	JobFinished(result string, d time.Duration)
}

// Nop is an Instrumentation that does nothing.
type Nop struct{}

func (Nop) JobFinished(string, time.Duration) {}

// Config holds Scheduler configuration.
type Config struct {
	Logger          *slog.Logger
	Timeline        TimelineWriter
	Publisher       Publisher
	Instrumentation Instrumentation
	// MaxConcurrent bounds the number of jobs running at once.
	MaxConcurrent int64
	// CompletionType is the update type broadcast on success.
	CompletionType models.UpdateType
	Now            func() time.Time
}

// Scheduler runs submitted jobs in their own goroutines.
type Scheduler struct {
	logger         *slog.Logger
	timeline       TimelineWriter
	publisher      Publisher
	inst           Instrumentation
	completionType models.UpdateType
	now            func() time.Time

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*Handle
	closed bool
}

// New creates a scheduler. Timeline is required.
func New(cfg *Config) (*Scheduler, error) {
	if cfg == nil || cfg.Timeline == nil {
		return nil, fmt.Errorf("scheduler: timeline writer is required")
	}
	s := &Scheduler{
		logger:         cfg.Logger,
		timeline:       cfg.Timeline,
		publisher:      cfg.Publisher,
		inst:           cfg.Instrumentation,
		completionType: cfg.CompletionType,
		now:            cfg.Now,
		jobs:           make(map[string]*Handle),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "scheduler")
	if s.inst == nil {
		s.inst = Nop{}
	}
	if s.completionType == "" {
		s.completionType = models.UpdateAnalysisCompleted
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	s.sem = semaphore.NewWeighted(limit)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Submit starts work for incidentID and returns without waiting. A jobID
// that is already tracked is replaced in the table; the earlier run is not
// cancelled and still records its outcome.
func (s *Scheduler) Submit(jobID, incidentID string, work Work) (*Handle, error) {
	h := newHandle(jobID, incidentID, s.now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if prev, ok := s.jobs[jobID]; ok && !prev.finished() {
		s.logger.Warn("job resubmitted while in flight", "job_id", jobID, "incident_id", incidentID)
	}
	s.jobs[jobID] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(h, work)
	return h, nil
}

func (s *Scheduler) run(h *Handle, work Work) {
	defer s.wg.Done()

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.fail(h, fmt.Errorf("waiting for a slot: %w", err))
		return
	}
	defer s.sem.Release(1)

	h.start(s.now())
	outcome, err := s.execute(h, work)
	if err != nil {
		s.fail(h, err)
		return
	}
	s.succeed(h, outcome)
}

func (s *Scheduler) execute(h *Handle, work Work) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job_id", h.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	outcome, err = work(s.ctx)
	if err == nil && outcome == nil {
		err = errors.New("job returned no outcome")
	}
	return outcome, err
}

func (s *Scheduler) succeed(h *Handle, o *Outcome) {
	actor := o.Actor
	if actor == "" {
		actor = defaultActor
	}
	entry := models.NewTimelineEntry(h.IncidentID, models.EntryAIAnalysis, o.Title, o.Summary, actor, s.now())
	if o.Metadata != nil {
		entry.Metadata = models.CloneMetadata(o.Metadata)
	}
	entry.Metadata["job_id"] = h.ID

	if _, err := s.timeline.Add(s.ctx, entry); err != nil {
		s.fail(h, fmt.Errorf("recording outcome: %w", err))
		return
	}

	if s.publisher != nil {
		data := models.CloneMetadata(o.Data)
		if data == nil {
			data = map[string]any{}
		}
		data["job_id"] = h.ID
		s.publisher.Broadcast(s.ctx, h.IncidentID, s.completionType, data)
	}

	h.finish(s.now(), StateSucceeded, nil)
	s.inst.JobFinished(string(StateSucceeded), h.duration())
	s.logger.Info("job completed", "job_id", h.ID, "incident_id", h.IncidentID, "duration", h.duration())
}

func (s *Scheduler) fail(h *Handle, err error) {
	h.finish(s.now(), StateFailed, err)
	s.inst.JobFinished(string(StateFailed), h.duration())
	s.logger.Error("job failed", "job_id", h.ID, "incident_id", h.IncidentID, "error", err)
}

// Get returns the handle tracked under jobID.
func (s *Scheduler) Get(jobID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.jobs[jobID]
	return h, ok
}

// Jobs returns the status of every tracked job, oldest submission first.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.jobs))
	for _, h := range s.jobs {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Running returns the number of jobs that have not finished.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.jobs {
		if !h.finished() {
			n++
		}
	}
	return n
}

// Closed reports whether Close has been called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting jobs and waits for in-flight ones. If ctx ends
// first the jobs' context is cancelled and ctx's error returned at once;
// jobs that ignore cancellation are left to finish on their own.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}
