package incident

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// postmortemTimelineEntries is how many recent timeline entries a
// postmortem lists.
const postmortemTimelineEntries = 10

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

// Postmortem renders a markdown postmortem for an incident.
func (s *Service) Postmortem(ctx context.Context, incidentID string) (string, error) {
	inc, err := s.store.Incidents().Get(ctx, incidentID)
	if err != nil {
		return "", err
	}
	timeline, err := s.store.Timeline().Get(ctx, incidentID)
	if err != nil {
		return "", err
	}
	actions, err := s.store.Actions().List(ctx, incidentID)
	if err != nil {
		return "", err
	}
	return renderPostmortem(inc, timeline, actions), nil
}

// PostmortemHTML renders the postmortem as HTML.
func (s *Service) PostmortemHTML(ctx context.Context, incidentID string) (string, error) {
	md, err := s.Postmortem(ctx, incidentID)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := markdownRenderer().Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render postmortem: %w", err)
	}
	return buf.String(), nil
}

// renderPostmortem expects timeline newest first and lists the most recent
// entries oldest first.
func renderPostmortem(inc *models.Incident, timeline []*models.TimelineEntry, actions []*models.Action) string {
	var b strings.Builder

	duration := "Ongoing"
	if inc.MTTRMinutes != nil {
		duration = fmt.Sprintf("%.1f minutes", *inc.MTTRMinutes)
	}

	fmt.Fprintf(&b, "# Incident Postmortem: %s\n\n", inc.Title)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Incident ID:** %s\n", inc.ID)
	fmt.Fprintf(&b, "- **Severity:** %s\n", inc.Severity)
	fmt.Fprintf(&b, "- **Duration:** %s\n", duration)
	fmt.Fprintf(&b, "- **Status:** %s\n", inc.Status)
	if inc.AISummary != "" {
		fmt.Fprintf(&b, "\n%s\n", inc.AISummary)
	}

	b.WriteString("\n## Description\n\n")
	b.WriteString(orDefault(inc.Description, "No description provided."))
	b.WriteString("\n\n## Timeline\n\n")
	recent := timeline
	if len(recent) > postmortemTimelineEntries {
		recent = recent[:postmortemTimelineEntries]
	}
	for i := len(recent) - 1; i >= 0; i-- {
		e := recent[i]
		line := fmt.Sprintf("- **%s**: %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Title)
		if e.Description != "" {
			line += " - " + e.Description
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n## Root Cause\n\n")
	b.WriteString(orDefault(inc.RootCause, "Under investigation"))
	b.WriteString("\n\n## Actions Taken\n\n")
	if len(actions) == 0 {
		b.WriteString("No actions recorded.\n")
	}
	for _, a := range actions {
		mark := " "
		if a.Status == models.ActionCompleted {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", mark, a.Title, a.Description)
	}

	b.WriteString(`
## Lessons Learned

- Review monitoring and alerting for earlier detection
- Update runbooks based on resolution steps
- Consider preventive measures to avoid recurrence

## Follow-up Actions

- Schedule post-incident review meeting
- Update documentation and runbooks
- Implement monitoring improvements
`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
