// Package cli provides the startup wiring shared by cmd/analysis-worker
// and cmd/analysisctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendwatch/internal/adapters"
	"spendwatch/internal/amqp"
	"spendwatch/internal/analysis"
	"spendwatch/internal/backend"
	"spendwatch/internal/config"
	"spendwatch/internal/core"
	"spendwatch/internal/ledger"
	"spendwatch/internal/llm"
	"spendwatch/internal/log"
	"spendwatch/internal/notify"
	"spendwatch/internal/review"
	"spendwatch/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from config and installs it as
// the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App holds the fully wired analysis pipeline.
type App struct {
	Config       *config.Config
	Logger       *log.Logger
	Store        backend.Store
	Ledger       *ledger.Ledger
	Orchestrator *services.Orchestrator
	Reaper       *services.Reaper

	backend *backend.BackendResult
	emails  *amqp.Client
	weights *analysis.CachedWeights
}

// BuildApp opens the configured backend and wires every pipeline
// component on top of it. AMQP and the LLM are optional: without them
// email jobs are dropped and reviews use the deterministic fallback.
func BuildApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Store: result.Store, backend: result}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			_ = result.Close()
			return nil, fmt.Errorf("connect to AMQP: %w", err)
		}
		app.emails = client
		logger.InfoContext(ctx, "Initialized AMQP client",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
	} else {
		logger.InfoContext(ctx, "AMQP disabled - no AMQP_URL provided, review emails will not be sent")
	}

	if !cfg.AIEnabled() {
		logger.InfoContext(ctx, "AI reviews disabled - no OPENAI_API_KEY provided, using fallback reviews")
	}
	generator, err := review.NewGenerator(
		llm.NewFromKey(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL),
		cfg.AITimeout,
		logger.Logger,
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build review generator: %w", err)
	}

	app.Ledger = ledger.New(result.Store, ledger.WithLogger(logger.Logger))
	app.Reaper = services.NewReaper(app.Ledger, cfg.StaleThreshold, logger.Logger)

	var weights analysis.WeightResolver = result.Store
	if cfg.WeightCacheTTL > 0 {
		app.weights = analysis.NewCachedWeights(result.Store, cfg.BatchSize*4, cfg.WeightCacheTTL)
		weights = app.weights
	}

	deps := services.Dependencies{
		Users:    adapters.NewUserDirectory(result.Store),
		Ledger:   app.Ledger,
		Analyzer: analysis.NewEngine(weights, result.Store, logger.Logger),
		Reviews:  generator,
		Notifier: notify.NewPublisher(result.Store, nil, logger.Logger),
		Store:    adapters.NewReviewStore(result.Store),
		Logger:   logger.Logger,
	}
	// Assigned only when set so a nil *amqp.Client never becomes a non-nil interface.
	if app.emails != nil {
		deps.Emails = app.emails
	}

	app.Orchestrator, err = services.NewOrchestrator(deps, services.OrchestratorConfig{
		BatchSize:       cfg.BatchSize,
		ReviewBatchSize: cfg.ReviewBatchSize,
		MaxIterations:   cfg.MaxIterations,
		ThresholdBuffer: cfg.ThresholdBuffer,
		ActiveOnly:      true,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// RunWindow analyses the trailing window ending yesterday.
func (a *App) RunWindow(ctx context.Context) (services.Summary, error) {
	start, end := AnalysisWindow(a.Ledger.Now(), a.Config.AnalysisWindowDays)
	return a.Run(ctx, start, end)
}

// Run analyses every active user over [start, end]. Cached weights never
// outlive a single run.
func (a *App) Run(ctx context.Context, start, end time.Time) (services.Summary, error) {
	if a.weights == nil {
		return a.Orchestrator.RunForAllUsers(ctx, start, end)
	}
	a.weights.Reset()
	summary, err := a.Orchestrator.RunForAllUsers(ctx, start, end)
	stats := a.weights.Stats()
	a.Logger.DebugContext(ctx, "Weight cache stats",
		"size", stats.Size,
		"hits", stats.Hits,
		"misses", stats.Misses)
	return summary, err
}

// Close releases the AMQP connection and the backend.
func (a *App) Close() error {
	var errs []error
	if a.emails != nil {
		if err := a.emails.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}

// AnalysisWindow returns the inclusive [start, end] covering the last days
// full days before now.
func AnalysisWindow(now time.Time, days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	end := core.NormalizeDate(now).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(days - 1))
	return start, end
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
