package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/warroom/internal/models"
)

func TestTransition(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	now := created.Add(90 * time.Minute)
	earlier := created.Add(time.Minute)

	tests := []struct {
		name       string
		current    models.Incident
		next       models.Status
		wantFirst  bool
		wantChange bool
	}{
		{"open to investigating", models.Incident{Status: models.StatusOpen, CreatedAt: created}, models.StatusInvestigating, false, true},
		{"open to resolved", models.Incident{Status: models.StatusOpen, CreatedAt: created}, models.StatusResolved, true, true},
		{"monitoring to resolved", models.Incident{Status: models.StatusMonitoring, CreatedAt: created}, models.StatusResolved, true, true},
		{"resolved again", models.Incident{Status: models.StatusResolved, CreatedAt: created, ResolvedAt: &earlier}, models.StatusResolved, false, false},
		{"reopened then resolved", models.Incident{Status: models.StatusOpen, CreatedAt: created, ResolvedAt: &earlier}, models.StatusResolved, false, true},
		{"closed to open", models.Incident{Status: models.StatusClosed, CreatedAt: created}, models.StatusOpen, false, true},
		{"same status", models.Incident{Status: models.StatusIdentified, CreatedAt: created}, models.StatusIdentified, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Transition(tt.current, tt.next, now)
			require.NotNil(t, c.Patch.Status)
			assert.Equal(t, tt.next, *c.Patch.Status)
			assert.Equal(t, tt.wantFirst, c.FirstResolution)
			assert.Equal(t, tt.wantChange, c.Changed())
			if tt.wantFirst {
				require.NotNil(t, c.Patch.ResolvedAt)
				require.NotNil(t, c.Patch.MTTRMinutes)
				assert.Equal(t, now, *c.Patch.ResolvedAt)
				assert.InDelta(t, 90.0, *c.Patch.MTTRMinutes, 1e-9)
				assert.Equal(t, 90*time.Minute, c.TimeToResolve)
			} else {
				assert.Nil(t, c.Patch.ResolvedAt)
				assert.Nil(t, c.Patch.MTTRMinutes)
			}
		})
	}
}
