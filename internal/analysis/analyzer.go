// Package analysis produces incident analyses. A remote analyzer is used
// when it reports itself available; the rule-based analyzer is the
// deterministic fallback.
package analysis

import (
	"context"
	"errors"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// ErrUnavailable is returned by an analyzer asked to run while unavailable.
var ErrUnavailable = errors.New("analyzer unavailable")

// MaxEvents is the number of recent events passed to an analyzer.
const MaxEvents = 50

// Input is what an analyzer sees of an incident.
type Input struct {
	Incident models.Incident `json:"incident"`
	// Events are the most recent events, newest first.
	Events []*models.Event `json:"events"`
}

// Analyzer analyzes one incident.
type Analyzer interface {
	// Name identifies the implementation in results and metrics.
	Name() string
	// Available reports whether Analyze can be called now.
	Available() bool
	Analyze(ctx context.Context, in Input) (*models.Analysis, error)
}

// levelCounts returns the number of error and warning events.
func levelCounts(events []*models.Event) (errs, warnings int) {
	for _, e := range events {
		switch e.Level {
		case models.LevelError, models.LevelCritical:
			errs++
		case models.LevelWarning:
			warnings++
		}
	}
	return errs, warnings
}
