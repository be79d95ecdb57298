package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/warroom/internal/analysis"
	"github.com/good-yellow-bee/warroom/internal/api"
	"github.com/good-yellow-bee/warroom/internal/api/health"
	"github.com/good-yellow-bee/warroom/internal/incident"
	"github.com/good-yellow-bee/warroom/internal/metrics"
	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/notifier"
	"github.com/good-yellow-bee/warroom/internal/room"
	"github.com/good-yellow-bee/warroom/internal/scheduler"
	"github.com/good-yellow-bee/warroom/internal/storage"
	"github.com/good-yellow-bee/warroom/pkg/config"
)

var (
	configFile  string
	httpAddr    string
	metricsAddr string
	logLevel    string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "warroom-server",
	Short: "Warroom Server - Incident state and live collaboration server",
	Long: `Warroom Server tracks operational incidents, ingests telemetry events,
keeps an append-only incident timeline, streams live updates to every
observer of an incident and runs incident analysis in the background.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.VersionString("warroom-server"))
	},
}

var validateRulesCmd = &cobra.Command{
	Use:   "validate-rules <file>",
	Short: "Validate an analysis rules file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := analysis.LoadRulesFromFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d categories, max %d actions\n",
			args[0], len(rules.Categories), rules.MaxActions)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.Flags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-address", "", "Prometheus listen address (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every HTTP request")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateRulesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration: file (or defaults), then flags,
// then environment.
func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	if metricsAddr != "" {
		cfg.Metrics.Address = metricsAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.Verbose = verbose
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	build := config.GetBuildInfo()
	metrics.SetBuildInfo(build.Version, build.Commit, build.BuildTime)
	recorder := metrics.Recorder{}

	store := storage.NewMemoryStorage(&storage.MemoryConfig{Logger: logger})
	defer store.Close()

	hub := room.NewHub(&room.Config{
		Logger:          logger,
		DeliveryTimeout: duration(cfg.Room.DeliveryTimeout),
		Instrumentation: recorder,
	})

	sched, err := scheduler.New(&scheduler.Config{
		Logger:          logger,
		Timeline:        store.Timeline(),
		Publisher:       hub,
		Instrumentation: recorder,
		MaxConcurrent:   cfg.Scheduler.MaxConcurrent,
		CompletionType:  models.UpdateAnalysisCompleted,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	var rules *analysis.Rules
	if cfg.Analysis.RulesFile != "" {
		rules, err = analysis.LoadRulesFromFile(cfg.Analysis.RulesFile)
		if err != nil {
			return fmt.Errorf("load analysis rules: %w", err)
		}
	}
	ruleAnalyzer := analysis.NewRuleAnalyzer(rules, store.Incidents(), logger)

	var primary analysis.Analyzer
	if cfg.Analysis.URL != "" {
		primary = analysis.NewRemoteAnalyzer(analysis.RemoteConfig{
			URL:      cfg.Analysis.URL,
			Timeout:  duration(cfg.Analysis.Timeout),
			Cooldown: duration(cfg.Analysis.Cooldown),
			Logger:   logger,
		})
	}
	commander, err := analysis.NewCommander(analysis.CommanderConfig{
		Primary:         primary,
		Fallback:        ruleAnalyzer,
		MaxActions:      cfg.Analysis.MaxActions,
		Logger:          logger,
		Instrumentation: recorder,
	})
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	publisher, closeNotifier, err := buildPublisher(cfg.Notify, hub, recorder, logger)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	svc, err := incident.New(&incident.Config{
		Store:           store,
		Publisher:       publisher,
		Scheduler:       sched,
		Analyzer:        commander,
		Instrumentation: recorder,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create incident service: %w", err)
	}

	shutdownTimeout := duration(cfg.Server.ShutdownTimeout)
	apiServer, err := api.New(&api.Config{
		Address:           cfg.Server.HTTPAddress,
		RateLimitPerSec:   cfg.Server.RateLimitPerSec,
		RateLimitBurst:    cfg.Server.RateLimitBurst,
		TrustedProxies:    cfg.Server.TrustedProxies,
		RequestTimeout:    duration(cfg.Server.RequestTimeout),
		StreamMaxDuration: duration(cfg.Server.StreamMaxDuration),
		ShutdownTimeout:   shutdownTimeout,
		Verbose:           cfg.Verbose,
		Logger:            logger,
	}, svc, hub)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	apiServer.RegisterHealthChecker(health.NewStoreChecker(store))
	apiServer.RegisterHealthChecker(health.NewSchedulerChecker(sched))
	apiServer.RegisterHealthChecker(health.NewAnalyzerChecker(commander))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting warroom-server",
		"version", config.Version,
		"http", cfg.Server.HTTPAddress,
		"analysis_mode", commander.Mode(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Run(gctx)
	})

	if !cfg.Metrics.Disabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Address, logger)
		g.Go(func() error {
			return metricsServer.Run(gctx, shutdownTimeout)
		})
	}

	if cfg.Analysis.WatchRules {
		g.Go(func() error {
			return ruleAnalyzer.Watch(gctx, cfg.Analysis.RulesFile)
		})
	}

	runErr := g.Wait()

	// Let in-flight analysis finish so its timeline entries land.
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Close(drainCtx); err != nil {
		logger.Warn("background jobs cancelled at shutdown", "error", err)
	}
	if err := hub.Close(drainCtx); err != nil {
		logger.Warn("room hub close", "error", err)
	}
	if err := closeNotifier(drainCtx); err != nil {
		logger.Warn("notifier close", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run server: %w", runErr)
	}
	logger.Info("server stopped", "uptime", time.Since(start).Round(time.Second))
	return nil
}

// buildPublisher wraps the hub with chat notifications when a webhook is
// configured. The returned close func flushes queued notifications.
func buildPublisher(cfg NotifyConfig, hub *room.Hub, inst notifier.Instrumentation, logger *slog.Logger) (incident.Publisher, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.SlackWebhook == "" && cfg.TeamsWebhook == "" {
		return hub, noop, nil
	}

	timeout := duration(cfg.Timeout)
	minSeverity, _ := models.ParseSeverity(cfg.MinSeverity)
	dispatcher := notifier.NewDispatcher(notifier.RateLimitConfig{
		MaxPerWindow: cfg.MaxPerMinute,
		Window:       time.Minute,
		Enabled:      true,
	}, inst)

	if cfg.SlackWebhook != "" {
		slack, err := notifier.NewSlackNotifier(notifier.WebhookConfig{URL: cfg.SlackWebhook, Timeout: timeout})
		if err != nil {
			return nil, nil, err
		}
		dispatcher.Register(slack)
	}
	if cfg.TeamsWebhook != "" {
		teams, err := notifier.NewTeamsNotifier(notifier.WebhookConfig{URL: cfg.TeamsWebhook, Timeout: timeout})
		if err != nil {
			return nil, nil, err
		}
		dispatcher.Register(teams)
	}

	pub, err := notifier.NewPublisher(notifier.PublisherConfig{
		Next:        hub,
		Dispatcher:  dispatcher,
		MinSeverity: minSeverity,
		SendTimeout: timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("incident notifications enabled", "channels", dispatcher.Len(), "min_severity", minSeverity)
	return pub, pub.Close, nil
}
