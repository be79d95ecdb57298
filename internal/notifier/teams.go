package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// TeamsNotifier posts Adaptive Cards to a Microsoft Teams incoming webhook.
type TeamsNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewTeamsNotifier creates a new Teams notifier.
func NewTeamsNotifier(config WebhookConfig) (*TeamsNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}
	return &TeamsNotifier{
		config:     config,
		httpClient: config.client(),
	}, nil
}

// Name returns "teams".
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// Send posts n to Teams.
func (t *TeamsNotifier) Send(ctx context.Context, n *Notification) error {
	return postJSON(ctx, t.httpClient, t.config.URL, "teams", t.buildPayload(n))
}

// Close is a no-op for Teams notifier.
func (t *TeamsNotifier) Close() error {
	return nil
}

type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

func (t *TeamsNotifier) buildPayload(n *Notification) teamsMessage {
	inc := n.Incident

	body := []any{
		container{
			Type:  "Container",
			Style: teamsStyle(n),
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   fmt.Sprintf("%s %s", severityEmoji(inc.Severity), n.Headline()),
					Size:   "Large",
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
	}

	fs := factSet{Type: "FactSet"}
	for _, f := range facts(n) {
		fs.Facts = append(fs.Facts, fact{Title: f[0], Value: f[1]})
	}
	body = append(body, fs)

	if inc.Description != "" {
		body = append(body, textBlock{Type: "TextBlock", Text: truncate(inc.Description, 2000), Wrap: true})
	}
	if inc.RootCause != "" {
		body = append(body, textBlock{
			Type: "TextBlock",
			Text: "**Root cause:** " + truncate(inc.RootCause, 1000),
			Wrap: true,
		})
	}

	footer := fmt.Sprintf("Incident %s", inc.ID)
	if len(inc.Tags) > 0 {
		footer += " · " + strings.Join(inc.Tags, ", ")
	}
	body = append(body, textBlock{Type: "TextBlock", Text: footer, Wrap: true, Color: "light"})

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsStyle picks the container style. Resolutions are always "good".
func teamsStyle(n *Notification) string {
	if n.Incident.Status == models.StatusResolved || n.Incident.Status == models.StatusClosed {
		return "good"
	}
	switch n.Incident.Severity {
	case models.SeverityCritical:
		return "attention"
	case models.SeverityHigh:
		return "warning"
	case models.SeverityMedium:
		return "accent"
	default:
		return "default"
	}
}
