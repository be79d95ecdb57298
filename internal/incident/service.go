// Package incident orchestrates incident operations: it applies mutations to
// the record store, derives status side effects, writes the timeline,
// notifies live observers and hands analysis to the background scheduler.
package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/good-yellow-bee/warroom/internal/analysis"
	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/scheduler"
	"github.com/good-yellow-bee/warroom/internal/storage"
)

// MaxBatchSize is the largest accepted ingestion batch.
const MaxBatchSize = 1000

// ErrAnalysisDisabled is returned by RequestAnalysis when no scheduler or
// analyzer is configured.
var ErrAnalysisDisabled = errors.New("analysis is not configured")

const analysisActor = "AI Commander"

// Publisher broadcasts updates to an incident's room.
type Publisher interface {
	Broadcast(ctx context.Context, incidentID string, typ models.UpdateType, data map[string]any) int
}

// Submitter runs background jobs.
type Submitter interface {
	Submit(jobID, incidentID string, work scheduler.Work) (*scheduler.Handle, error)
	Get(jobID string) (*scheduler.Handle, bool)
}

// Instrumentation receives incident metrics. Calls are fire-and-forget.
type Instrumentation interface {
	IncidentCreated(severity models.Severity, source string)
	IncidentResolved(severity models.Severity, timeToResolve time.Duration)
	ActiveIncidents(severity models.Severity, status models.Status, delta float64)
	EventIngested(eventType models.EventType, source string)
}

// Nop is an Instrumentation that does nothing.
type Nop struct{}

func (Nop) IncidentCreated(models.Severity, string)                 {}
func (Nop) IncidentResolved(models.Severity, time.Duration)         {}
func (Nop) ActiveIncidents(models.Severity, models.Status, float64) {}
func (Nop) EventIngested(models.EventType, string)                  {}

// Config holds Service dependencies. Store is required.
type Config struct {
	Store           storage.Storage
	Publisher       Publisher
	Scheduler       Submitter
	Analyzer        analysis.Analyzer
	Instrumentation Instrumentation
	Logger          *slog.Logger
	Now             func() time.Time
}

// Service is the entry point request handlers call.
type Service struct {
	store     storage.Storage
	publisher Publisher
	scheduler Submitter
	analyzer  analysis.Analyzer
	inst      Instrumentation
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, errors.New("incident: store is required")
	}
	s := &Service{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		scheduler: cfg.Scheduler,
		analyzer:  cfg.Analyzer,
		inst:      cfg.Instrumentation,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.inst == nil {
		s.inst = Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "incident")
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// --- Incidents ---

// CreateIncident validates c, stores a new open incident and records its
// creation in the timeline.
func (s *Service) CreateIncident(ctx context.Context, c models.IncidentCreate) (*models.Incident, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	inc, err := s.store.Incidents().Create(ctx, models.NewIncident(c, s.now()))
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	s.addTimeline(ctx, models.NewTimelineEntry(inc.ID, models.EntryStatusChange,
		"Incident created",
		fmt.Sprintf("Incident created from %s", inc.Source),
		inc.Source, inc.CreatedAt))

	s.inst.IncidentCreated(inc.Severity, inc.Source)
	s.inst.ActiveIncidents(inc.Severity, inc.Status, 1)
	s.logger.Info("incident created", "incident_id", inc.ID, "severity", inc.Severity, "source", inc.Source)
	s.publish(ctx, inc.ID, models.UpdateIncidentCreated, map[string]any{"incident": inc})
	return inc, nil
}

// GetIncident returns an incident or storage.ErrNotFound.
func (s *Service) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	return s.store.Incidents().Get(ctx, id)
}

// ListIncidents returns incidents newest first.
func (s *Service) ListIncidents(ctx context.Context, filter storage.IncidentFilter) ([]*models.Incident, error) {
	return s.store.Incidents().List(ctx, filter)
}

// UpdateStatus moves an incident to status. Any status may follow any
// other; the first move into resolved derives resolved_at and mttr_minutes.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.Status, actor string) (*models.Incident, error) {
	if !status.Valid() {
		return nil, models.Validationf("invalid status %q", status)
	}

	now := s.now()
	var before models.Incident
	var change StatusChange
	inc, err := s.store.Incidents().UpdateFunc(ctx, id, func(cur models.Incident) (models.IncidentPatch, error) {
		before = cur
		change = Transition(cur, status, now)
		return change.Patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordStatusChange(ctx, before, inc, change, actor)
	return inc, nil
}

// UpdateIncident applies a raw field map. Keys that are not updatable
// fields are ignored and returned. A status field goes through the same
// transition as UpdateStatus.
func (s *Service) UpdateIncident(ctx context.Context, id string, raw map[string]any, actor string) (*models.Incident, []string, error) {
	patch, ignored, err := models.ParseIncidentPatch(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(ignored) > 0 {
		s.logger.Warn("ignoring unknown incident fields", "incident_id", id, "fields", ignored)
	}

	now := s.now()
	var before models.Incident
	var change *StatusChange
	inc, err := s.store.Incidents().UpdateFunc(ctx, id, func(cur models.Incident) (models.IncidentPatch, error) {
		before = cur
		p := patch
		if p.Status != nil {
			c := Transition(cur, *p.Status, now)
			p.ResolvedAt = c.Patch.ResolvedAt
			p.MTTRMinutes = c.Patch.MTTRMinutes
			change = &c
		}
		return p, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if change != nil {
		s.recordStatusChange(ctx, before, inc, *change, actor)
	} else {
		s.moveActive(before, *inc)
		fields := appliedFields(raw, ignored)
		s.addTimeline(ctx, models.NewTimelineEntry(id, models.EntryUserAction,
			"Incident updated",
			fmt.Sprintf("Updated fields: %s", strings.Join(fields, ", ")),
			actorOr(actor, "user"), now))
	}

	s.publish(ctx, id, models.UpdateIncidentUpdated, map[string]any{
		"incident": inc,
		"fields":   appliedFields(raw, ignored),
	})
	return inc, ignored, nil
}

func (s *Service) recordStatusChange(ctx context.Context, before models.Incident, after *models.Incident, change StatusChange, actor string) {
	entry := models.NewTimelineEntry(after.ID, models.EntryStatusChange,
		fmt.Sprintf("Status changed to %s", change.To),
		fmt.Sprintf("Status updated from %s to %s", change.From, change.To),
		actorOr(actor, "user"), s.now())
	entry.Metadata["old_status"] = string(change.From)
	entry.Metadata["new_status"] = string(change.To)
	s.addTimeline(ctx, entry)

	s.moveActive(before, *after)
	if change.FirstResolution {
		s.inst.IncidentResolved(after.Severity, change.TimeToResolve)
		s.logger.Info("incident resolved",
			"incident_id", after.ID,
			"severity", after.Severity,
			"mttr_minutes", *after.MTTRMinutes,
		)
	} else {
		s.logger.Info("incident status changed", "incident_id", after.ID, "from", change.From, "to", change.To)
	}

	s.publish(ctx, after.ID, models.UpdateStatusChanged, map[string]any{
		"old_status": change.From,
		"new_status": change.To,
		"incident":   after,
		"actor":      actorOr(actor, "user"),
	})
}

// moveActive moves the active gauge from before's severity/status pair to
// after's. Only active statuses are counted.
func (s *Service) moveActive(before, after models.Incident) {
	if before.Status == after.Status && before.Severity == after.Severity {
		return
	}
	if before.Status.IsActive() {
		s.inst.ActiveIncidents(before.Severity, before.Status, -1)
	}
	if after.Status.IsActive() {
		s.inst.ActiveIncidents(after.Severity, after.Status, 1)
	}
}

// --- Events ---

// IngestEvent stores one event. It fails with storage.ErrNotFound when the
// incident does not exist.
func (s *Service) IngestEvent(ctx context.Context, c models.EventCreate) (*models.Event, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ev, err := s.store.Events().Create(ctx, models.NewEvent(c, s.now()))
	if err != nil {
		return nil, err
	}
	s.eventIngested(ctx, ev)
	return ev, nil
}

// IngestBatch stores up to MaxBatchSize events. The whole batch is
// validated first and rejected on any error. Events whose incident does not
// exist are skipped; the stored events are returned.
func (s *Service) IngestBatch(ctx context.Context, batch []models.EventCreate) ([]*models.Event, error) {
	if len(batch) == 0 {
		return nil, models.Validationf("batch must contain at least one event")
	}
	if len(batch) > MaxBatchSize {
		return nil, models.Validationf("batch of %d events exceeds the maximum of %d", len(batch), MaxBatchSize)
	}
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	now := s.now()
	created := make([]*models.Event, 0, len(batch))
	skipped := 0
	for _, c := range batch {
		ev, err := s.store.Events().Create(ctx, models.NewEvent(c, now))
		if errors.Is(err, storage.ErrNotFound) {
			skipped++
			continue
		}
		if err != nil {
			return created, err
		}
		s.eventIngested(ctx, ev)
		created = append(created, ev)
	}
	if skipped > 0 {
		s.logger.Warn("skipped events for unknown incidents", "skipped", skipped, "stored", len(created))
	}
	return created, nil
}

func (s *Service) eventIngested(ctx context.Context, ev *models.Event) {
	s.inst.EventIngested(ev.EventType, ev.Source)
	s.logger.Debug("event ingested", "incident_id", ev.IncidentID, "event_id", ev.ID, "type", ev.EventType, "level", ev.Level)
	s.publish(ctx, ev.IncidentID, models.UpdateEventIngested, map[string]any{"event": ev})
}

// ListEvents returns an incident's events, newest first.
func (s *Service) ListEvents(ctx context.Context, incidentID string, limit int) ([]*models.Event, error) {
	if err := s.requireIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.store.Events().List(ctx, incidentID, limit)
}

// --- Timeline ---

// Timeline returns an incident's history, newest first.
func (s *Service) Timeline(ctx context.Context, incidentID string) ([]*models.TimelineEntry, error) {
	if err := s.requireIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.store.Timeline().Get(ctx, incidentID)
}

// AddComment appends a comment to an incident's timeline.
func (s *Service) AddComment(ctx context.Context, incidentID, author, text string) (*models.TimelineEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.Validationf("comment must not be empty")
	}
	if err := s.requireIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	author = actorOr(author, "anonymous")
	entry := s.addTimeline(ctx, models.NewTimelineEntry(incidentID, models.EntryComment,
		fmt.Sprintf("Comment from %s", author), text, author, s.now()))
	s.publish(ctx, incidentID, models.UpdateCommentAdded, map[string]any{"entry": entry})
	return entry, nil
}

// --- Actions ---

// Actions returns an incident's actions, highest priority first.
func (s *Service) Actions(ctx context.Context, incidentID string) ([]*models.Action, error) {
	if err := s.requireIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.store.Actions().List(ctx, incidentID)
}

// CreateAction adds a remediation action to an incident.
func (s *Service) CreateAction(ctx context.Context, c models.ActionCreate) (*models.Action, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireIncident(ctx, c.IncidentID); err != nil {
		return nil, err
	}
	a, err := s.store.Actions().Create(ctx, models.NewAction(c, s.now()))
	if err != nil {
		return nil, err
	}
	s.addTimeline(ctx, models.NewTimelineEntry(a.IncidentID, models.EntryUserAction,
		fmt.Sprintf("Action added: %s", a.Title), a.Description, a.SuggestedBy, a.CreatedAt))
	s.publish(ctx, a.IncidentID, models.UpdateActionCreated, map[string]any{"action": a})
	return a, nil
}

// UpdateAction applies a raw field map to an action. Unknown keys are
// ignored and returned. A status change is recorded in the timeline.
func (s *Service) UpdateAction(ctx context.Context, id string, raw map[string]any, actor string) (*models.Action, []string, error) {
	patch, ignored, err := models.ParseActionPatch(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(ignored) > 0 {
		s.logger.Warn("ignoring unknown action fields", "action_id", id, "fields", ignored)
	}

	before, err := s.store.Actions().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.store.Actions().Update(ctx, id, patch)
	if err != nil {
		return nil, nil, err
	}

	if a.Status != before.Status {
		who := actorOr(actor, actorOr(a.ExecutedBy, "user"))
		desc := a.Description
		if a.Result != "" {
			desc = a.Result
		}
		if a.Error != "" {
			desc = a.Error
		}
		s.addTimeline(ctx, models.NewTimelineEntry(a.IncidentID, models.EntryUserAction,
			fmt.Sprintf("Action %s: %s", a.Status, a.Title), desc, who, s.now()))
	}
	s.publish(ctx, a.IncidentID, models.UpdateActionUpdated, map[string]any{"action": a})
	return a, ignored, nil
}

// --- Analysis ---

// AnalysisJobID returns the job id used for an incident's analysis.
func AnalysisJobID(incidentID string) string {
	return "analysis-" + incidentID
}

// RequestAnalysis submits a background analysis of an incident and returns
// without waiting for it.
func (s *Service) RequestAnalysis(ctx context.Context, incidentID string) (*scheduler.Handle, error) {
	if s.scheduler == nil || s.analyzer == nil {
		return nil, ErrAnalysisDisabled
	}
	if err := s.requireIncident(ctx, incidentID); err != nil {
		return nil, err
	}

	jobID := AnalysisJobID(incidentID)
	s.publish(ctx, incidentID, models.UpdateAnalysisStarted, map[string]any{"job_id": jobID})
	h, err := s.scheduler.Submit(jobID, incidentID, func(ctx context.Context) (*scheduler.Outcome, error) {
		return s.analyze(ctx, incidentID)
	})
	if err != nil {
		return nil, fmt.Errorf("submit analysis: %w", err)
	}
	s.logger.Info("analysis submitted", "incident_id", incidentID, "job_id", jobID)
	return h, nil
}

// Job returns the status of a background job.
func (s *Service) Job(jobID string) (scheduler.Status, error) {
	if s.scheduler == nil {
		return scheduler.Status{}, ErrAnalysisDisabled
	}
	h, ok := s.scheduler.Get(jobID)
	if !ok {
		return scheduler.Status{}, fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound)
	}
	return h.Status(), nil
}

// analyze runs the analyzer, stores its findings on the incident and turns
// each suggested action into an Action record.
func (s *Service) analyze(ctx context.Context, incidentID string) (*scheduler.Outcome, error) {
	inc, err := s.store.Incidents().Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.Events().List(ctx, incidentID, analysis.MaxEvents)
	if err != nil {
		return nil, err
	}

	res, err := s.analyzer.Analyze(ctx, analysis.Input{Incident: *inc, Events: events})
	if err != nil {
		return nil, fmt.Errorf("analyze incident %s: %w", incidentID, err)
	}

	suggested := res.Actions
	if suggested == nil {
		suggested = []string{}
	}
	similar := res.SimilarIncidents
	if similar == nil {
		similar = []string{}
	}

	suggestedBy := analysisActor
	if res.Degraded {
		suggestedBy = res.Analyzer
	}
	now := s.now()
	pending := make([]*models.Action, 0, min(len(suggested), models.MaxPriority))
	for i, desc := range suggested {
		if i+1 > models.MaxPriority {
			break
		}
		c := models.ActionCreate{
			IncidentID:  incidentID,
			Title:       fmt.Sprintf("Action %d", i+1),
			Description: desc,
			SuggestedBy: suggestedBy,
			Priority:    i + 1,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("suggested action %d: %w", i+1, err)
		}
		pending = append(pending, models.NewAction(c, now))
	}

	// Actions first, incident fields last: a failure leaves the incident
	// untouched and only the actions already listed behind.
	created := make([]*models.Action, 0, len(pending))
	for _, a := range pending {
		stored, err := s.store.Actions().Create(ctx, a)
		if err != nil {
			return nil, s.partialAnalysis(incidentID, created, err)
		}
		created = append(created, stored)
	}

	if _, err := s.store.Incidents().Update(ctx, incidentID, models.IncidentPatch{
		AISummary:        &res.Summary,
		RootCause:        &res.RootCause,
		SuggestedActions: suggested,
		SimilarIncidents: similar,
	}); err != nil {
		return nil, s.partialAnalysis(incidentID, created, err)
	}

	for _, a := range created {
		s.publish(ctx, incidentID, models.UpdateActionCreated, map[string]any{"action": a})
	}

	return &scheduler.Outcome{
		Title:   analysis.Title(res),
		Summary: res.Summary,
		Actor:   analysisActor,
		Metadata: map[string]any{
			"analyzer": res.Analyzer,
			"degraded": res.Degraded,
			"actions":  len(created),
		},
		Data: map[string]any{"analysis": res},
	}, nil
}

// partialAnalysis logs the actions an interrupted analysis left behind and
// wraps err with their ids.
func (s *Service) partialAnalysis(incidentID string, created []*models.Action, err error) error {
	if len(created) == 0 {
		return err
	}
	ids := make([]string, len(created))
	for i, a := range created {
		ids[i] = a.ID
	}
	s.logger.Warn("analysis interrupted after creating actions",
		"incident_id", incidentID,
		"action_ids", ids,
		"error", err,
	)
	return fmt.Errorf("%w (left %d action(s): %s)", err, len(ids), strings.Join(ids, ", "))
}

// --- helpers ---

func (s *Service) requireIncident(ctx context.Context, id string) error {
	if !s.store.Incidents().Exists(ctx, id) {
		return fmt.Errorf("incident %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Service) addTimeline(ctx context.Context, entry *models.TimelineEntry) *models.TimelineEntry {
	stored, err := s.store.Timeline().Add(ctx, entry)
	if err != nil {
		s.logger.Error("failed to add timeline entry", "incident_id", entry.IncidentID, "title", entry.Title, "error", err)
		return entry
	}
	return stored
}

func (s *Service) publish(ctx context.Context, incidentID string, typ models.UpdateType, data map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Broadcast(ctx, incidentID, typ, data)
}

func actorOr(actor, fallback string) string {
	if strings.TrimSpace(actor) == "" {
		return fallback
	}
	return actor
}

// appliedFields returns the keys of raw that were not ignored, sorted.
func appliedFields(raw map[string]any, ignored []string) []string {
	skip := make(map[string]bool, len(ignored))
	for _, k := range ignored {
		skip[k] = true
	}
	fields := make([]string, 0, len(raw))
	for k := range raw {
		if !skip[k] {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
