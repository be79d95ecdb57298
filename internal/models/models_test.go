package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentCreateValidate(t *testing.T) {
	tests := []struct {
		name     string
		in       IncidentCreate
		wantErr  bool
		severity Severity
		source   string
	}{
		{name: "defaults", in: IncidentCreate{Title: "DB pool exhausted"}, severity: SeverityMedium, source: "manual"},
		{name: "explicit severity", in: IncidentCreate{Title: "DB pool exhausted", Severity: "HIGH", Source: "datadog"}, severity: SeverityHigh, source: "datadog"},
		{name: "blank title", in: IncidentCreate{Title: "   "}, wantErr: true},
		{name: "bad severity", in: IncidentCreate{Title: "x", Severity: "urgent"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := in.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.severity, in.Severity)
			assert.Equal(t, tt.source, in.Source)
		})
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Rank(), order[i-1].Rank(), "%s should outrank %s", order[i], order[i-1])
	}
	assert.False(t, Severity("sev0").Valid())
}

func TestStatusIsActive(t *testing.T) {
	for _, s := range Statuses {
		want := s != StatusResolved && s != StatusClosed
		assert.Equal(t, want, s.IsActive(), string(s))
	}
}

func TestNormalizeLevel(t *testing.T) {
	tests := map[string]string{
		"":         LevelInfo,
		"WARN":     LevelWarning,
		"Error":    LevelError,
		"fatal":    LevelCritical,
		"notice":   LevelInfo,
		"verbose":  "verbose",
		" debug  ": LevelDebug,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLevel(in), "level %q", in)
	}
}

func TestIncidentCloneIsDeep(t *testing.T) {
	inc := NewIncident(IncidentCreate{
		Title:    "Cache miss storm",
		Tags:     []string{"redis"},
		Metadata: map[string]any{"region": "eu-west-1"},
	}, time.Now())

	c := inc.Clone()
	c.Tags[0] = "memcached"
	c.Metadata["region"] = "us-east-1"

	assert.Equal(t, "redis", inc.Tags[0])
	assert.Equal(t, "eu-west-1", inc.Metadata["region"])
}

func TestCloneMetadataNested(t *testing.T) {
	inc := NewIncident(IncidentCreate{
		Title: "Pager storm",
		Metadata: map[string]any{
			"oncall": map[string]any{"primary": "alice"},
			"hosts":  []any{"db-1", map[string]any{"name": "db-2"}},
		},
	}, time.Now())

	c := inc.Clone()
	c.Metadata["oncall"].(map[string]any)["primary"] = "bob"
	hosts := c.Metadata["hosts"].([]any)
	hosts[0] = "db-9"
	hosts[1].(map[string]any)["name"] = "db-8"

	assert.Equal(t, "alice", inc.Metadata["oncall"].(map[string]any)["primary"])
	assert.Equal(t, []any{"db-1", map[string]any{"name": "db-2"}}, inc.Metadata["hosts"])

	src := map[string]any{"labels": map[string]any{"team": "sre"}}
	patch, _, err := ParseIncidentPatch(map[string]any{"metadata": src})
	require.NoError(t, err)
	src["labels"].(map[string]any)["team"] = "dba"
	patch.Apply(inc)
	assert.Equal(t, "sre", inc.Metadata["labels"].(map[string]any)["team"])

	assert.Nil(t, CloneMetadata(nil))
}

func TestEventCreateValidate(t *testing.T) {
	ev := EventCreate{IncidentID: "inc-1", EventType: EventTypeLog, Message: "too many clients", Level: "ERR"}
	require.NoError(t, ev.Validate())
	assert.Equal(t, LevelError, ev.Level)
	assert.Equal(t, "unknown", ev.Source)

	bad := EventCreate{IncidentID: "inc-1", EventType: "syslog", Message: "x"}
	require.ErrorIs(t, bad.Validate(), ErrValidation)
}
