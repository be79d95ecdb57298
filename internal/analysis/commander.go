package analysis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// Instrumentation receives analysis timings.
type Instrumentation interface {
	AnalysisFinished(analyzer string, d time.Duration, suggestions int)
}

// Nop is an Instrumentation that does nothing.
type Nop struct{}

func (Nop) AnalysisFinished(string, time.Duration, int) {}

// CommanderConfig configures a Commander.
type CommanderConfig struct {
	// Primary is tried first when it reports itself available. May be nil.
	Primary Analyzer
	// Fallback is required.
	Fallback        Analyzer
	MaxActions      int
	Logger          *slog.Logger
	Instrumentation Instrumentation
}

// Commander picks an analyzer per run: the primary when available, the
// fallback otherwise or when the primary fails. Fallback results are marked
// degraded.
type Commander struct {
	primary    Analyzer
	fallback   Analyzer
	maxActions int
	logger     *slog.Logger
	inst       Instrumentation
}

// NewCommander creates a commander.
func NewCommander(cfg CommanderConfig) (*Commander, error) {
	if cfg.Fallback == nil {
		return nil, errors.New("analysis: fallback analyzer is required")
	}
	if cfg.MaxActions <= 0 {
		cfg.MaxActions = DefaultMaxActions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Instrumentation == nil {
		cfg.Instrumentation = Nop{}
	}
	return &Commander{
		primary:    cfg.Primary,
		fallback:   cfg.Fallback,
		maxActions: cfg.MaxActions,
		logger:     cfg.Logger.With("component", "commander"),
		inst:       cfg.Instrumentation,
	}, nil
}

func (c *Commander) Name() string    { return "commander" }
func (c *Commander) Available() bool { return true }

// Mode names the analyzer the next run would start with.
func (c *Commander) Mode() string {
	if c.primary != nil && c.primary.Available() {
		return c.primary.Name()
	}
	return c.fallback.Name()
}

// Analyze runs the primary analyzer if available and falls back on error.
func (c *Commander) Analyze(ctx context.Context, in Input) (*models.Analysis, error) {
	if c.primary != nil && c.primary.Available() {
		res, err := c.run(ctx, c.primary, in)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("primary analyzer failed, using fallback",
			"incident_id", in.Incident.ID,
			"analyzer", c.primary.Name(),
			"error", err,
		)
	}

	res, err := c.run(ctx, c.fallback, in)
	if err != nil {
		return nil, err
	}
	res.Degraded = true
	return res, nil
}

func (c *Commander) run(ctx context.Context, a Analyzer, in Input) (*models.Analysis, error) {
	start := time.Now()
	res, err := a.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(res.Actions) > c.maxActions {
		res.Actions = res.Actions[:c.maxActions]
	}
	if res.Analyzer == "" {
		res.Analyzer = a.Name()
	}
	c.inst.AnalysisFinished(res.Analyzer, time.Since(start), len(res.Actions))
	return res, nil
}
