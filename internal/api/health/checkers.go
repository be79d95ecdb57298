package health

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/warroom/internal/storage"
)

// StatsReader reports record store sizes.
type StatsReader interface {
	Stats(ctx context.Context) storage.Stats
}

// StoreChecker checks the record store responds.
type StoreChecker struct {
	store StatsReader
}

// NewStoreChecker creates a new store health checker.
func NewStoreChecker(store StatsReader) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name returns the checker name.
func (c *StoreChecker) Name() string {
	return "store"
}

// Check verifies the store is configured and answers a stats query.
func (c *StoreChecker) Check(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("store not initialized")
	}
	c.store.Stats(ctx)
	return ctx.Err()
}

// Detail reports collection sizes.
func (c *StoreChecker) Detail(ctx context.Context) string {
	if c.store == nil {
		return ""
	}
	s := c.store.Stats(ctx)
	return fmt.Sprintf("%d incidents, %d events, %d timeline entries, %d actions",
		s.Incidents, s.Events, s.TimelineEntries, s.Actions)
}

// JobRunner reports background scheduler state.
type JobRunner interface {
	Closed() bool
	Running() int
}

// SchedulerChecker checks the background scheduler still accepts work.
type SchedulerChecker struct {
	runner JobRunner
}

// NewSchedulerChecker creates a new scheduler health checker.
func NewSchedulerChecker(r JobRunner) *SchedulerChecker {
	return &SchedulerChecker{runner: r}
}

// Name returns the checker name.
func (c *SchedulerChecker) Name() string {
	return "scheduler"
}

// Check verifies the scheduler is open.
func (c *SchedulerChecker) Check(ctx context.Context) error {
	if c.runner == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if c.runner.Closed() {
		return fmt.Errorf("scheduler closed")
	}
	return nil
}

// Detail reports running jobs.
func (c *SchedulerChecker) Detail(ctx context.Context) string {
	if c.runner == nil {
		return ""
	}
	return fmt.Sprintf("%d running", c.runner.Running())
}

// ModeReporter reports which analyzer serves requests.
type ModeReporter interface {
	Mode() string
}

// AnalyzerChecker reports the analysis mode. Fallback mode is degraded but
// still ready: rule-based analysis keeps answering.
type AnalyzerChecker struct {
	analyzer ModeReporter
}

// NewAnalyzerChecker creates a new analyzer health checker.
func NewAnalyzerChecker(a ModeReporter) *AnalyzerChecker {
	return &AnalyzerChecker{analyzer: a}
}

// Name returns the checker name.
func (c *AnalyzerChecker) Name() string {
	return "analyzer"
}

// Check verifies an analyzer is configured.
func (c *AnalyzerChecker) Check(ctx context.Context) error {
	if c.analyzer == nil {
		return fmt.Errorf("analyzer not configured")
	}
	return nil
}

// Detail reports the analyzer mode.
func (c *AnalyzerChecker) Detail(ctx context.Context) string {
	if c.analyzer == nil {
		return ""
	}
	return "mode " + c.analyzer.Mode()
}
