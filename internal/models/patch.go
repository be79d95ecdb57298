package models

import (
	"math"
	"slices"
	"sort"
	"time"
)

// IncidentPatch is a partial update of an incident. Nil fields are left
// untouched. Slices and maps are replaced wholesale when non-nil.
type IncidentPatch struct {
	Title       *string
	Description *string
	Status      *Status
	Severity    *Severity
	Source      *string
	Tags        []string
	Metadata    map[string]any

	AISummary        *string
	RootCause        *string
	SuggestedActions []string
	SimilarIncidents []string

	// Derived fields. Set only by the status machine; the store applies them
	// at most once.
	ResolvedAt  *time.Time
	MTTRMinutes *float64
}

// IsEmpty reports whether the patch sets nothing.
func (p IncidentPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Severity == nil && p.Source == nil && p.Tags == nil &&
		p.Metadata == nil && p.AISummary == nil && p.RootCause == nil &&
		p.SuggestedActions == nil && p.SimilarIncidents == nil &&
		p.ResolvedAt == nil && p.MTTRMinutes == nil
}

// Apply writes the set fields onto inc. ResolvedAt and MTTRMinutes are only
// written while inc has none; they are never cleared.
func (p IncidentPatch) Apply(inc *Incident) {
	if p.Title != nil {
		inc.Title = *p.Title
	}
	if p.Description != nil {
		inc.Description = *p.Description
	}
	if p.Status != nil {
		inc.Status = *p.Status
	}
	if p.Severity != nil {
		inc.Severity = *p.Severity
	}
	if p.Source != nil {
		inc.Source = *p.Source
	}
	if p.Tags != nil {
		inc.Tags = normalizeTags(p.Tags)
	}
	if p.Metadata != nil {
		inc.Metadata = CloneMetadata(p.Metadata)
	}
	if p.AISummary != nil {
		inc.AISummary = *p.AISummary
	}
	if p.RootCause != nil {
		inc.RootCause = *p.RootCause
	}
	if p.SuggestedActions != nil {
		inc.SuggestedActions = slices.Clone(p.SuggestedActions)
	}
	if p.SimilarIncidents != nil {
		inc.SimilarIncidents = slices.Clone(p.SimilarIncidents)
	}
	if p.ResolvedAt != nil && inc.ResolvedAt == nil {
		t := *p.ResolvedAt
		inc.ResolvedAt = &t
	}
	if p.MTTRMinutes != nil && inc.MTTRMinutes == nil {
		m := *p.MTTRMinutes
		inc.MTTRMinutes = &m
	}
}

type incidentSetter func(p *IncidentPatch, v any) error

// incidentFields maps wire names to setters. Keys absent from this table are
// ignored by ParseIncidentPatch.
var incidentFields = map[string]incidentSetter{
	"title": func(p *IncidentPatch, v any) error {
		s, err := stringValue("title", v)
		if err == nil && s == "" {
			err = Validationf("title must not be empty")
		}
		p.Title = &s
		return err
	},
	"description": func(p *IncidentPatch, v any) error {
		s, err := stringValue("description", v)
		p.Description = &s
		return err
	},
	"status": func(p *IncidentPatch, v any) error {
		s, err := stringValue("status", v)
		if err != nil {
			return err
		}
		st, err := ParseStatus(s)
		p.Status = &st
		return err
	},
	"severity": func(p *IncidentPatch, v any) error {
		s, err := stringValue("severity", v)
		if err != nil {
			return err
		}
		sev, err := ParseSeverity(s)
		p.Severity = &sev
		return err
	},
	"source": func(p *IncidentPatch, v any) error {
		s, err := stringValue("source", v)
		p.Source = &s
		return err
	},
	"tags": func(p *IncidentPatch, v any) (err error) {
		p.Tags, err = stringsValue("tags", v)
		return err
	},
	"metadata": func(p *IncidentPatch, v any) (err error) {
		p.Metadata, err = mapValue("metadata", v)
		return err
	},
	"ai_summary": func(p *IncidentPatch, v any) error {
		s, err := stringValue("ai_summary", v)
		p.AISummary = &s
		return err
	},
	"root_cause": func(p *IncidentPatch, v any) error {
		s, err := stringValue("root_cause", v)
		p.RootCause = &s
		return err
	},
	"suggested_actions": func(p *IncidentPatch, v any) (err error) {
		p.SuggestedActions, err = stringsValue("suggested_actions", v)
		return err
	},
	"similar_incidents": func(p *IncidentPatch, v any) (err error) {
		p.SimilarIncidents, err = stringsValue("similar_incidents", v)
		return err
	},
}

// ParseIncidentPatch converts a raw field map into an IncidentPatch. Keys
// that are not updatable fields are returned in ignored, sorted, and are not
// an error. A recognized key with a value of the wrong type is.
func ParseIncidentPatch(raw map[string]any) (patch IncidentPatch, ignored []string, err error) {
	for key, v := range raw {
		set, ok := incidentFields[key]
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		if err := set(&patch, v); err != nil {
			return IncidentPatch{}, nil, err
		}
	}
	sort.Strings(ignored)
	return patch, ignored, nil
}

// ActionPatch is a partial update of an action. Nil fields are left untouched.
type ActionPatch struct {
	Title       *string
	Description *string
	Status      *ActionStatus
	ExecutedBy  *string
	Priority    *int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *string
	Error       *string
}

// Apply writes the set fields onto a. Moving to in_progress stamps
// StartedAt and moving to completed or failed stamps CompletedAt; both
// timestamps are set at most once.
func (p ActionPatch) Apply(a *Action, now time.Time) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.ExecutedBy != nil {
		a.ExecutedBy = *p.ExecutedBy
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.Result != nil {
		a.Result = *p.Result
	}
	if p.Error != nil {
		a.Error = *p.Error
	}
	if p.StartedAt != nil && a.StartedAt == nil {
		t := *p.StartedAt
		a.StartedAt = &t
	}
	if p.CompletedAt != nil && a.CompletedAt == nil {
		t := *p.CompletedAt
		a.CompletedAt = &t
	}
	if p.Status != nil {
		a.Status = *p.Status
		if a.Status == ActionInProgress && a.StartedAt == nil {
			t := now
			a.StartedAt = &t
		}
		if a.Status.Terminal() && a.CompletedAt == nil {
			t := now
			a.CompletedAt = &t
		}
	}
}

type actionSetter func(p *ActionPatch, v any) error

var actionFields = map[string]actionSetter{
	"title": func(p *ActionPatch, v any) error {
		s, err := stringValue("title", v)
		p.Title = &s
		return err
	},
	"description": func(p *ActionPatch, v any) error {
		s, err := stringValue("description", v)
		p.Description = &s
		return err
	},
	"status": func(p *ActionPatch, v any) error {
		s, err := stringValue("status", v)
		if err != nil {
			return err
		}
		st := ActionStatus(s)
		if !st.Valid() {
			return Validationf("invalid action status %q", s)
		}
		p.Status = &st
		return nil
	},
	"executed_by": func(p *ActionPatch, v any) error {
		s, err := stringValue("executed_by", v)
		p.ExecutedBy = &s
		return err
	},
	"priority": func(p *ActionPatch, v any) error {
		n, err := intValue("priority", v)
		if err != nil {
			return err
		}
		if err := ValidatePriority(n); err != nil {
			return err
		}
		p.Priority = &n
		return nil
	},
	"result": func(p *ActionPatch, v any) error {
		s, err := stringValue("result", v)
		p.Result = &s
		return err
	},
	"error": func(p *ActionPatch, v any) error {
		s, err := stringValue("error", v)
		p.Error = &s
		return err
	},
}

// ParseActionPatch converts a raw field map into an ActionPatch, with the
// same unknown-key semantics as ParseIncidentPatch.
func ParseActionPatch(raw map[string]any) (patch ActionPatch, ignored []string, err error) {
	for key, v := range raw {
		set, ok := actionFields[key]
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		if err := set(&patch, v); err != nil {
			return ActionPatch{}, nil, err
		}
	}
	sort.Strings(ignored)
	return patch, ignored, nil
}

func stringValue(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", Validationf("%s must be a string", field)
	}
	return s, nil
}

func stringsValue(field string, v any) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		return slices.Clone(vv), nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, Validationf("%s must be a list of strings", field)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return []string{}, nil
	}
	return nil, Validationf("%s must be a list of strings", field)
}

func mapValue(field string, v any) (map[string]any, error) {
	switch vv := v.(type) {
	case map[string]any:
		return CloneMetadata(vv), nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, Validationf("%s must be an object", field)
}

func intValue(field string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, Validationf("%s must be an integer", field)
		}
		return int(n), nil
	}
	return 0, Validationf("%s must be an integer", field)
}
