package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// SlackNotifier posts Block Kit messages to a Slack incoming webhook.
type SlackNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config WebhookConfig) (*SlackNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}
	return &SlackNotifier{
		config:     config,
		httpClient: config.client(),
	}, nil
}

// Name returns "slack".
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send posts n to Slack.
func (s *SlackNotifier) Send(ctx context.Context, n *Notification) error {
	return postJSON(ctx, s.httpClient, s.config.URL, "slack", s.buildPayload(n))
}

// Close is a no-op for Slack notifier.
func (s *SlackNotifier) Close() error {
	return nil
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func (s *SlackNotifier) buildPayload(n *Notification) slackMessage {
	inc := n.Incident
	headline := fmt.Sprintf("%s %s", severityEmoji(inc.Severity), n.Headline())

	fields := make([]slackText, 0, 6)
	for _, f := range facts(n) {
		fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", f[0], f[1])})
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: truncate(headline, 150), Emoji: true},
		},
		{Type: "section", Fields: fields},
	}

	if inc.Description != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: truncate(inc.Description, 2000)},
		})
	}
	if inc.RootCause != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Root cause:* " + truncate(inc.RootCause, 1000)},
		})
	}

	footer := []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("Incident `%s`", inc.ID)}}
	if len(inc.Tags) > 0 {
		tags := make([]string, len(inc.Tags))
		for i, t := range inc.Tags {
			tags[i] = "`" + t + "`"
		}
		footer = append(footer, slackText{Type: "mrkdwn", Text: "Tags: " + strings.Join(tags, " ")})
	}
	blocks = append(blocks, slackBlock{Type: "context", Elements: footer})

	return slackMessage{Text: headline, Blocks: blocks}
}
