package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config WebhookConfig
		errMsg string
	}{
		{"empty config", WebhookConfig{}, "webhook URL is required"},
		{"http URL rejected", WebhookConfig{URL: "http://hooks.slack.com/services/xxx"}, "webhook URL must use HTTPS"},
		{"valid config", WebhookConfig{URL: "https://hooks.slack.com/services/T00/B00/xxx"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewSlackNotifierRejectsInvalidConfig(t *testing.T) {
	_, err := NewSlackNotifier(WebhookConfig{URL: "http://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid slack config")
}

func TestSlackNotifierSend(t *testing.T) {
	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := &SlackNotifier{config: WebhookConfig{URL: server.URL}, httpClient: server.Client()}
	assert.Equal(t, "slack", s.Name())
	require.NoError(t, s.Send(context.Background(), testNotification()))

	require.NotEmpty(t, got.Blocks)
	assert.Contains(t, got.Text, "Incident resolved: Checkout latency")

	header := got.Blocks[0]
	assert.Equal(t, "header", header.Type)
	require.NotNil(t, header.Text)
	assert.Contains(t, header.Text.Text, "Checkout latency")

	var fields []string
	for _, f := range got.Blocks[1].Fields {
		fields = append(fields, f.Text)
	}
	joined := strings.Join(fields, "\n")
	assert.Contains(t, joined, "CRITICAL")
	assert.Contains(t, joined, "monitoring → resolved")
	assert.Contains(t, joined, "alice")
	assert.Contains(t, joined, "42.0 min")

	footer := got.Blocks[len(got.Blocks)-1]
	assert.Equal(t, "context", footer.Type)
	require.Len(t, footer.Elements, 2)
	assert.Contains(t, footer.Elements[0].Text, "inc-1")
	assert.Contains(t, footer.Elements[1].Text, "`payments`")
}

func TestSlackNotifierSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	s := &SlackNotifier{config: WebhookConfig{URL: server.URL}, httpClient: server.Client()}
	err := s.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
