package incident

import (
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// StatusChange is the outcome of moving an incident to a new status.
type StatusChange struct {
	From models.Status
	To   models.Status
	// Patch sets the status and, on first resolution, the derived fields.
	Patch models.IncidentPatch
	// FirstResolution is set when this change resolves the incident for the
	// first time.
	FirstResolution bool
	// TimeToResolve is set with FirstResolution.
	TimeToResolve time.Duration
}

// Changed reports whether the status actually moved.
func (c StatusChange) Changed() bool {
	return c.From != c.To
}

// Transition computes the effect of setting current's status to next.
// Transitions are not restricted: any status may follow any other.
// resolved_at and mttr_minutes are derived only when the incident has never
// been resolved and is not resolved now.
func Transition(current models.Incident, next models.Status, now time.Time) StatusChange {
	c := StatusChange{
		From:  current.Status,
		To:    next,
		Patch: models.IncidentPatch{Status: &next},
	}
	if next != models.StatusResolved || current.Status == models.StatusResolved || current.ResolvedAt != nil {
		return c
	}

	resolvedAt := now
	ttr := resolvedAt.Sub(current.CreatedAt)
	mttr := ttr.Minutes()
	c.Patch.ResolvedAt = &resolvedAt
	c.Patch.MTTRMinutes = &mttr
	c.FirstResolution = true
	c.TimeToResolve = ttr
	return c
}
