package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// Remote analyzer defaults.
const (
	DefaultRemoteTimeout  = 30 * time.Second
	DefaultRemoteCooldown = time.Minute
)

// RemoteConfig configures a RemoteAnalyzer.
type RemoteConfig struct {
	// URL receives a POST with the analysis input. Empty disables the
	// analyzer.
	URL     string
	Timeout time.Duration
	// Cooldown is how long the analyzer reports itself unavailable after a
	// failed call.
	Cooldown time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// RemoteAnalyzer calls an external analysis service over HTTP.
type RemoteAnalyzer struct {
	client   *http.Client
	url      string
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

// NewRemoteAnalyzer creates a remote analyzer.
func NewRemoteAnalyzer(cfg RemoteConfig) *RemoteAnalyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultRemoteCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RemoteAnalyzer{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:      cfg.URL,
		cooldown: cfg.Cooldown,
		logger:   cfg.Logger.With("component", "remote_analyzer"),
		now:      cfg.Now,
	}
}

func (a *RemoteAnalyzer) Name() string { return "remote" }

// Available reports whether a URL is configured and the analyzer is not
// cooling down after a failure.
func (a *RemoteAnalyzer) Available() bool {
	if a.url == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.now().Before(a.downUntil)
}

type remoteResponse struct {
	Summary          string   `json:"summary"`
	RootCause        string   `json:"root_cause"`
	Actions          []string `json:"actions"`
	SimilarIncidents []string `json:"similar_incidents"`
}

func (a *RemoteAnalyzer) Analyze(ctx context.Context, in Input) (*models.Analysis, error) {
	if !a.Available() {
		return nil, ErrUnavailable
	}
	res, err := a.call(ctx, in)
	if err != nil {
		a.markDown()
		return nil, err
	}
	return res, nil
}

func (a *RemoteAnalyzer) call(ctx context.Context, in Input) (*models.Analysis, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	if out.Summary == "" {
		return nil, fmt.Errorf("analysis response has no summary")
	}
	if out.Actions == nil {
		out.Actions = []string{}
	}
	if out.SimilarIncidents == nil {
		out.SimilarIncidents = []string{}
	}
	return &models.Analysis{
		Summary:          out.Summary,
		RootCause:        out.RootCause,
		Actions:          out.Actions,
		SimilarIncidents: out.SimilarIncidents,
		Analyzer:         a.Name(),
	}, nil
}

func (a *RemoteAnalyzer) markDown() {
	a.mu.Lock()
	a.downUntil = a.now().Add(a.cooldown)
	a.mu.Unlock()
	a.logger.Warn("remote analyzer marked unavailable", "cooldown", a.cooldown)
}
