// Package client is a Go client for the Warroom HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/scheduler"
)

const (
	apiPrefix   = "/api/v1"
	actorHeader = "X-Actor"
)

// Config holds client settings.
type Config struct {
	BaseURL string        // server root, e.g. http://localhost:8080
	Actor   string        // sent as X-Actor on every request
	Timeout time.Duration // per request (default: 30s)

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client calls the Warroom API.
type Client struct {
	base       *url.URL
	actor      string
	httpClient *http.Client
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", base.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, actor: cfg.Actor, httpClient: hc}, nil
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ListOptions filters incident listings. Zero values are not sent.
type ListOptions struct {
	Status   models.Status
	Severity models.Severity
	Limit    int
}

// BatchResult is the outcome of a batch ingestion.
type BatchResult struct {
	Items    []*models.Event `json:"items"`
	Accepted int             `json:"accepted"`
	Skipped  int             `json:"skipped"`
}

type listResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type updateResult[T any] struct {
	Item    T        `json:"item"`
	Ignored []string `json:"ignored"`
}

type envelope[T any] struct {
	Data  T         `json:"data"`
	Error *APIError `json:"error"`
}

// CreateIncident opens a new incident.
func (c *Client) CreateIncident(ctx context.Context, req models.IncidentCreate) (*models.Incident, error) {
	return call[*models.Incident](ctx, c, http.MethodPost, "/incidents", nil, req)
}

// ListIncidents returns incidents, newest first.
func (c *Client) ListIncidents(ctx context.Context, opts ListOptions) ([]*models.Incident, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Severity != "" {
		q.Set("severity", string(opts.Severity))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	res, err := call[listResult[*models.Incident]](ctx, c, http.MethodGet, "/incidents", q, nil)
	return res.Items, err
}

// GetIncident returns one incident.
func (c *Client) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	return call[*models.Incident](ctx, c, http.MethodGet, "/incidents/"+url.PathEscape(id), nil, nil)
}

// UpdateIncident applies a partial update. The server reports keys it did
// not recognise in ignored.
func (c *Client) UpdateIncident(ctx context.Context, id string, fields map[string]any) (*models.Incident, []string, error) {
	res, err := call[updateResult[*models.Incident]](ctx, c, http.MethodPatch, "/incidents/"+url.PathEscape(id), nil, fields)
	return res.Item, res.Ignored, err
}

// UpdateStatus moves an incident to status.
func (c *Client) UpdateStatus(ctx context.Context, id string, status models.Status) (*models.Incident, error) {
	body := map[string]string{"status": string(status), "actor": c.actor}
	return call[*models.Incident](ctx, c, http.MethodPatch, "/incidents/"+url.PathEscape(id)+"/status", nil, body)
}

// Timeline returns an incident's timeline, oldest first.
func (c *Client) Timeline(ctx context.Context, id string) ([]*models.TimelineEntry, error) {
	res, err := call[listResult[*models.TimelineEntry]](ctx, c, http.MethodGet, "/incidents/"+url.PathEscape(id)+"/timeline", nil, nil)
	return res.Items, err
}

// AddComment appends a comment to an incident's timeline.
func (c *Client) AddComment(ctx context.Context, id, text string) (*models.TimelineEntry, error) {
	body := map[string]string{"author": c.actor, "comment": text}
	return call[*models.TimelineEntry](ctx, c, http.MethodPost, "/incidents/"+url.PathEscape(id)+"/comments", nil, body)
}

// Actions returns an incident's actions.
func (c *Client) Actions(ctx context.Context, incidentID string) ([]*models.Action, error) {
	res, err := call[listResult[*models.Action]](ctx, c, http.MethodGet, "/incidents/"+url.PathEscape(incidentID)+"/actions", nil, nil)
	return res.Items, err
}

// CreateAction adds an action to an incident.
func (c *Client) CreateAction(ctx context.Context, incidentID string, req models.ActionCreate) (*models.Action, error) {
	return call[*models.Action](ctx, c, http.MethodPost, "/incidents/"+url.PathEscape(incidentID)+"/actions", nil, req)
}

// UpdateAction applies a partial update to an action.
func (c *Client) UpdateAction(ctx context.Context, id string, fields map[string]any) (*models.Action, []string, error) {
	res, err := call[updateResult[*models.Action]](ctx, c, http.MethodPatch, "/actions/"+url.PathEscape(id), nil, fields)
	return res.Item, res.Ignored, err
}

// IngestEvent attaches one event to an incident.
func (c *Client) IngestEvent(ctx context.Context, req models.EventCreate) (*models.Event, error) {
	return call[*models.Event](ctx, c, http.MethodPost, "/ingest/events", nil, req)
}

// IngestBatch attaches many events at once.
func (c *Client) IngestBatch(ctx context.Context, batch []models.EventCreate) (*BatchResult, error) {
	return call[*BatchResult](ctx, c, http.MethodPost, "/ingest/events/batch", nil, batch)
}

// Events returns an incident's events, newest first. Zero limit uses the
// server default.
func (c *Client) Events(ctx context.Context, incidentID string, limit int) ([]*models.Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	res, err := call[listResult[*models.Event]](ctx, c, http.MethodGet, "/ingest/events/"+url.PathEscape(incidentID), q, nil)
	return res.Items, err
}

// Analyze starts an analysis run and returns its job.
func (c *Client) Analyze(ctx context.Context, incidentID string) (*scheduler.Status, error) {
	return call[*scheduler.Status](ctx, c, http.MethodPost, "/incidents/"+url.PathEscape(incidentID)+"/analyze", nil, nil)
}

// Job returns a background job's status.
func (c *Client) Job(ctx context.Context, jobID string) (*scheduler.Status, error) {
	return call[*scheduler.Status](ctx, c, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil)
}

// WaitJob polls a job every interval until it finishes or ctx ends.
func (c *Client) WaitJob(ctx context.Context, jobID string, interval time.Duration) (*scheduler.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if st.State == scheduler.StateSucceeded || st.State == scheduler.StateFailed {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Postmortem renders an incident's postmortem as markdown or html.
func (c *Client) Postmortem(ctx context.Context, incidentID, format string) (string, error) {
	q := url.Values{}
	if format != "" {
		q.Set("format", format)
	}
	resp, err := c.do(ctx, http.MethodGet, c.apiURL("/incidents/"+url.PathEscape(incidentID)+"/postmortem", q), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read postmortem: %w", err)
	}
	return string(data), nil
}

// Health is the server readiness report. Checks maps each dependency to
// its state, which starts with "ok" when healthy.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns the server readiness report. A server that is not ready
// still returns its report along with an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	u := *c.base
	u.Path += "/health/ready"
	resp, err := c.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &h, fmt.Errorf("server not ready: %s", h.Status)
	}
	return &h, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, q url.Values, body any) (T, error) {
	var zero T
	resp, err := c.do(ctx, method, c.apiURL(path, q), body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return zero, decodeError(resp)
	}
	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return env.Data, nil
}

func (c *Client) apiURL(path string, q url.Values) string {
	u := *c.base
	u.Path += apiPrefix + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.actor != "" {
		req.Header.Set(actorHeader, c.actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var env envelope[json.RawMessage]
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}
