package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookConfig holds an incoming webhook endpoint.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration // per request (default: 10s)
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

func (c *WebhookConfig) client() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postJSON posts payload to url and treats any 2xx as delivered.
func postJSON(ctx context.Context, client *http.Client, url, service string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s webhook error: status %d, body: %s", service, resp.StatusCode, string(body))
	}
	return nil
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityHigh:
		return "\U0001F7E0" // orange circle
	case models.SeverityMedium:
		return "\U0001F7E1" // yellow circle
	case models.SeverityLow:
		return "\U0001F7E2" // green circle
	default:
		return "⚪" // white circle
	}
}

// truncate shortens s to at most max bytes, ending in an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// facts returns the label/value pairs shared by every channel's layout.
func facts(n *Notification) [][2]string {
	inc := n.Incident
	out := [][2]string{
		{"Severity", fmt.Sprintf("%s %s", severityEmoji(inc.Severity), strings.ToUpper(string(inc.Severity)))},
		{"Status", string(inc.Status)},
	}
	if n.Kind == KindStatusChanged && n.OldStatus != "" {
		out[1][1] = fmt.Sprintf("%s → %s", n.OldStatus, inc.Status)
	}
	out = append(out,
		[2]string{"Source", inc.Source},
		[2]string{"Time", n.Timestamp.UTC().Format("2006-01-02 15:04:05 MST")},
	)
	if n.Actor != "" {
		out = append(out, [2]string{"By", n.Actor})
	}
	if inc.MTTRMinutes != nil && inc.Status == models.StatusResolved {
		out = append(out, [2]string{"Time to resolve", fmt.Sprintf("%.1f min", *inc.MTTRMinutes)})
	}
	return out
}
