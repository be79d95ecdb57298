package models

import "slices"

// Analysis is the result produced by an analysis collaborator for one
// incident.
type Analysis struct {
	Summary          string   `json:"summary"`
	RootCause        string   `json:"root_cause"`
	Actions          []string `json:"actions"`
	SimilarIncidents []string `json:"similar_incidents"`

	// Analyzer names the implementation that produced the result.
	Analyzer string `json:"analyzer"`
	// Degraded is set when the rule-based fallback produced the result.
	Degraded bool `json:"degraded"`
}

// Clone returns a deep copy.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Actions = slices.Clone(a.Actions)
	c.SimilarIncidents = slices.Clone(a.SimilarIncidents)
	return &c
}
