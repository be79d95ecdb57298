package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/storage"
)

// MaxSimilar is the number of similar incidents reported.
const MaxSimilar = 3

// similarScanLimit bounds how many recent incidents are compared.
const similarScanLimit = 200

// IncidentLister lists incidents for similarity lookups.
type IncidentLister interface {
	List(ctx context.Context, filter storage.IncidentFilter) ([]*models.Incident, error)
}

// RuleAnalyzer is the deterministic keyword-based analyzer. It is always
// available. Rules can be swapped at runtime.
type RuleAnalyzer struct {
	rules     atomic.Pointer[Rules]
	incidents IncidentLister
	logger    *slog.Logger
}

// NewRuleAnalyzer creates a rule analyzer. Nil rules selects DefaultRules;
// a nil lister disables similar-incident lookups.
func NewRuleAnalyzer(rules *Rules, incidents IncidentLister, logger *slog.Logger) *RuleAnalyzer {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &RuleAnalyzer{incidents: incidents, logger: logger.With("component", "rule_analyzer")}
	a.rules.Store(rules)
	return a
}

func (a *RuleAnalyzer) Name() string    { return "rules" }
func (a *RuleAnalyzer) Available() bool { return true }

// Rules returns the rules in use.
func (a *RuleAnalyzer) Rules() *Rules {
	return a.rules.Load()
}

// SetRules replaces the rules for subsequent runs.
func (a *RuleAnalyzer) SetRules(r *Rules) {
	a.rules.Store(r)
}

// Analyze matches the incident's title and description against the keyword
// categories.
func (a *RuleAnalyzer) Analyze(ctx context.Context, in Input) (*models.Analysis, error) {
	rules := a.rules.Load()
	errs, warnings := levelCounts(in.Events)

	category := rules.Match(in.Incident.Title + " " + in.Incident.Description)
	rootCause := category.expandRootCause(errs, warnings)

	actions := append([]string(nil), category.Actions...)
	if len(actions) > rules.MaxActions {
		actions = actions[:rules.MaxActions]
	}

	return &models.Analysis{
		Summary: fmt.Sprintf("Rule-based analysis: %s. Found %d error events and %d warnings.",
			rootCause, errs, warnings),
		RootCause:        rootCause,
		Actions:          actions,
		SimilarIncidents: a.similar(ctx, rules, &in.Incident, category),
		Analyzer:         a.Name(),
	}, nil
}

// similar returns up to MaxSimilar other incidents, newest first, that share
// a tag or a keyword category with inc.
func (a *RuleAnalyzer) similar(ctx context.Context, rules *Rules, inc *models.Incident, category *Category) []string {
	out := []string{}
	if a.incidents == nil {
		return out
	}
	candidates, err := a.incidents.List(ctx, storage.IncidentFilter{Limit: similarScanLimit})
	if err != nil {
		a.logger.Warn("similar incident lookup failed", "incident_id", inc.ID, "error", err)
		return out
	}

	for _, c := range candidates {
		if c.ID == inc.ID {
			continue
		}
		if sharesTag(inc, c) || (category != &rules.Generic && rules.Match(c.Title+" "+c.Description) == category) {
			out = append(out, c.ID)
			if len(out) == MaxSimilar {
				break
			}
		}
	}
	return out
}

func sharesTag(a, b *models.Incident) bool {
	for _, t := range a.Tags {
		if b.HasTag(t) {
			return true
		}
	}
	return false
}

// Title returns the timeline title for an analysis.
func Title(an *models.Analysis) string {
	if an.Degraded {
		return "Analysis completed (fallback)"
	}
	return "AI analysis completed"
}
