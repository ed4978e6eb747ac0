package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwatch/internal/cli"
	ophttp "spendwatch/internal/http"
	"spendwatch/internal/log"
	"spendwatch/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "analysis-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting analysis-worker",
		"backend", cfg.DataBackend,
		"analysis_interval", cfg.AnalysisInterval,
		"reaper_interval", cfg.ReaperInterval,
		"window_days", cfg.AnalysisWindowDays)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.BuildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()

	analysisJob, err := worker.NewScheduler(func(ctx context.Context) error {
		summary, err := app.RunWindow(ctx)
		if err != nil {
			return err
		}
		if summary.IterationLimitHit {
			logger.WarnContext(ctx, "Analysis batch stopped at the iteration limit", "pages", summary.Pages)
		}
		return nil
	}, worker.SchedulerConfig{
		Name:       "analysis",
		Interval:   cfg.AnalysisInterval,
		RunOnStart: true,
	}, logger.Logger)
	if err != nil {
		return err
	}

	reaperJob, err := worker.NewScheduler(func(ctx context.Context) error {
		_, err := app.Reaper.ReapStale(ctx)
		return err
	}, worker.SchedulerConfig{
		Name:       "reaper",
		Interval:   cfg.ReaperInterval,
		RunOnStart: true,
	}, logger.Logger)
	if err != nil {
		return err
	}

	server := ophttp.NewServer(cfg.MetricsAddr, app.Store, app.Store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Ops server listening", "addr", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	for _, s := range []*worker.Scheduler{reaperJob, analysisJob} {
		s := s
		g.Go(func() error {
			if err := s.Start(gctx); err != nil {
				return err
			}
			s.Wait()
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var errs []error
		for _, s := range []*worker.Scheduler{analysisJob, reaperJob} {
			if err := s.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown ops server: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("analysis-worker stopped")
	return nil
}
