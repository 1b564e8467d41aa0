package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/api"
	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/decision"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/explain"
	"github.com/opensource-finance/merlin/internal/recommend"
	"github.com/opensource-finance/merlin/internal/repository"
	"github.com/opensource-finance/merlin/internal/riskscore"
	"github.com/opensource-finance/merlin/internal/rules"
	"github.com/opensource-finance/merlin/internal/score"
	"github.com/opensource-finance/merlin/internal/telemetry"
	"github.com/opensource-finance/merlin/internal/velocity"
	"github.com/opensource-finance/merlin/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the bus worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting merlin",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.Load(cfg.Screening.RulesPath, cfg.Screening.CostLimit)
	if err != nil {
		return fmt.Errorf("failed to load screening rules: %w", err)
	}
	slog.Info("rule engine initialized",
		"rules_count", engine.RulesCount(),
		"invalid_rules", len(engine.Invalid()),
	)

	deps := decision.Deps{
		Rules:  engine,
		Scorer: score.NewCalculator(),
		Bus:    busImpl,
	}

	explainer, err := explain.New(ctx, cfg.Explain)
	switch {
	case err == nil:
		deps.Explainer = explainer
	case errors.Is(err, explain.ErrNotConfigured):
		slog.Warn("explanations disabled", "reason", err)
	default:
		return fmt.Errorf("failed to initialize explanation provider: %w", err)
	}

	if cfg.RiskScore.Enabled {
		scorer, err := riskscore.New(ctx, cfg.RiskScore)
		if err != nil {
			return fmt.Errorf("failed to initialize external scoring: %w", err)
		}
		deps.Risk = scorer
		slog.Info("external scoring enabled", "endpoint", cfg.RiskScore.Endpoint)
	}

	if cfg.Velocity.Enabled {
		deps.Velocity = velocity.NewService(repo, cacheImpl, cfg.Velocity.Window)
		slog.Info("velocity tracking enabled", "window", cfg.Velocity.Window)
	}

	sink, err := decision.NewSink(cfg.Persistence.Mode, repo, busImpl, cacheImpl, cfg.Cache.LocalTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	deps.Sink = sink

	orch, err := decision.New(deps, decision.Config{
		ContinueOnFlag: cfg.Screening.ContinueOnFlag,
		Hints:          cfg.Hints,
		MaxTokens:      cfg.Explain.MaxTokens,
		Temperature:    cfg.Explain.Temperature,
		PersistTimeout: cfg.Persistence.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	apiDeps := api.Deps{
		Decider: orch,
		Rules:   engine,
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Version: Version,
	}
	recommender, err := recommend.LoadService(cfg.Catalog.Path, cacheImpl, cfg.Catalog.CacheTTL, cfg.Catalog.TopK)
	if err != nil {
		slog.Warn("product recommendations disabled", "path", cfg.Catalog.Path, "error", err)
	} else {
		apiDeps.Recommender = recommender
		slog.Info("product catalog loaded", "products", recommender.Size())
	}

	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, orch)
	if err := asyncWorker.Start(worker.Config{
		Persist:        cfg.Persistence.Mode == decision.ModeAsync,
		ServeDecisions: true,
		CacheTTL:       cfg.Cache.LocalTTL,
	}); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	slog.Info("worker started", "persistence", sink.Name())

	srv := api.NewServer(cfg.Server, apiDeps)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("merlin is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serveErr:
		asyncWorker.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// The worker drains after the server so async writes from in-flight requests land.
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	stats := asyncWorker.GetStats()
	slog.Info("merlin shutdown complete",
		"stored", stats.Stored,
		"failed", stats.Failed,
		"decided", stats.Decided,
	)
	return nil
}
