// Package app wires the orchestrator's concrete components — registry,
// health/cost trackers, circuit breakers, QPS limiter, credential
// store, and the three vendor providers — into the orchestrator
// facade's Deps. cmd/orchctl is the only caller; it stays a thin CLI
// because this is where assembly lives.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limmutable/orchestrator/circuitbreaker"
	"github.com/limmutable/orchestrator/cost"
	"github.com/limmutable/orchestrator/credentials"
	"github.com/limmutable/orchestrator/health"
	"github.com/limmutable/orchestrator/internal/cache"
	"github.com/limmutable/orchestrator/internal/config"
	"github.com/limmutable/orchestrator/internal/ctxkeys"
	"github.com/limmutable/orchestrator/internal/metrics"
	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/limmutable/orchestrator/providers/anthropic"
	"github.com/limmutable/orchestrator/providers/gemini"
	"github.com/limmutable/orchestrator/providers/openai"
	"github.com/limmutable/orchestrator/registry"
	"github.com/limmutable/orchestrator/retry"
	"github.com/limmutable/orchestrator/strategies"
)

// App bundles the live components behind the facade along with
// whatever must be closed at shutdown.
type App struct {
	Facade  *orchestrator.Facade
	Metrics *metrics.Collector
	// MetricsAddr is the listen address Metrics should be served on,
	// copied from config. Empty when Metrics is nil.
	MetricsAddr string

	env    *strategies.Env
	logger *zap.Logger
	closer func() error
}

// Build constructs every component cfg names and returns a ready App.
// Provider credentials are resolved once, at startup, via the
// three-tier credentials.Store; a provider whose secret cannot be
// found gets no implementation rather than failing the whole build, so
// the rest of the pool stays usable. It stays enabled in the registry,
// and a strategy that tries it records a critical failure for it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg, err := registry.New(cfg.Providers, cfg.Orchestration.ProviderPriority)
	if err != nil {
		return nil, fmt.Errorf("app: building registry: %w", err)
	}

	healthTracker, err := health.New(filepath.Join(cfg.DataDir, "health_metrics.json"), cfg.Orchestration.UnhealthyThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("app: loading health metrics: %w", err)
	}

	costTracker, err := cost.New(filepath.Join(cfg.DataDir, "cost_metrics.json"), cfg.Providers, logger)
	if err != nil {
		return nil, fmt.Errorf("app: loading cost metrics: %w", err)
	}

	breakers := make(map[orchestrator.ProviderID]*circuitbreaker.Breaker, len(cfg.Providers))
	for _, p := range cfg.Providers {
		breakers[p.ProviderName] = circuitbreaker.New(string(p.ProviderName), circuitbreaker.Config{
			FailureThreshold: cfg.Orchestration.FailureThreshold,
			SuccessThreshold: cfg.Orchestration.SuccessThreshold,
			Timeout:          cfg.Orchestration.CircuitOpenTimeout,
		}, logger)
	}

	credStore, closeCache := buildCredentialStore(cfg, logger)

	impls, err := buildProviders(ctx, cfg.Providers, credStore, logger)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("orchestrator")
	}

	env := &strategies.Env{
		Registry:    reg,
		Providers:   impls,
		Health:      healthTracker,
		Cost:        costTracker,
		Breakers:    breakers,
		QPS:         health.NewQPSLimiter(cfg.Providers),
		RetryPolicy: retry.DefaultPolicy(),
		Logger:      logger,
		Metrics:     collector,
	}

	deps := orchestrator.Deps{
		RunStrategy: func(ctx context.Context, strategy orchestrator.Strategy, text, extractionContext, emailID string) (orchestrator.ExtractionResult, orchestrator.ProviderID, error) {
			return runStrategy(ctx, env, cfg.Orchestration, strategy, text, extractionContext, emailID)
		},
		Status: func() map[orchestrator.ProviderID]orchestrator.ProviderStatus {
			return buildStatus(env, breakers)
		},
		TestProviderFn: func(ctx context.Context, id orchestrator.ProviderID) (bool, time.Duration, error) {
			return testProvider(ctx, env, id)
		},
	}

	facade := orchestrator.NewFacade(cfg.Orchestration.DefaultStrategy, deps)

	return &App{
		Facade:      facade,
		Metrics:     collector,
		MetricsAddr: cfg.Metrics.Addr,
		env:         env,
		logger:      logger,
		closer:      closeCache,
	}, nil
}

// Close releases the credential cache's Redis connection, if one was
// opened.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

func buildCredentialStore(cfg *config.Config, logger *zap.Logger) (*credentials.Store, func() error) {
	opts := []credentials.Option{credentials.WithEnvPrefix("ORCH_")}

	if cfg.Redis.Addr == "" {
		return credentials.New(logger, opts...), nil
	}

	mgr, err := cache.NewManager(cache.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		DefaultTTL: cfg.Redis.CacheTTL,
	}, logger)
	if err != nil {
		logger.Warn("credentials: redis cache tier unavailable, falling back to env only", zap.Error(err))
		return credentials.New(logger, opts...), nil
	}

	opts = append(opts, credentials.WithCache(mgr, cfg.Redis.CacheTTL))
	return credentials.New(logger, opts...), mgr.Close
}

func buildProviders(ctx context.Context, configs []orchestrator.ProviderConfig, creds *credentials.Store, logger *zap.Logger) (map[orchestrator.ProviderID]orchestrator.Provider, error) {
	impls := make(map[orchestrator.ProviderID]orchestrator.Provider, len(configs))

	for _, p := range configs {
		if !p.Enabled {
			continue
		}
		apiKey, err := creds.LookupSecret(ctx, p.CredentialRef)
		if err != nil {
			logger.Warn("app: no credential for provider, leaving it unregistered", zap.String("provider", string(p.ProviderName)), zap.Error(err))
			continue
		}

		switch p.ProviderName {
		case "gemini":
			impl, err := gemini.New(ctx, apiKey, p.ModelID, logger)
			if err != nil {
				return nil, fmt.Errorf("app: building gemini provider: %w", err)
			}
			impls[p.ProviderName] = impl
		case "claude":
			impls[p.ProviderName] = anthropic.New(apiKey, p.ModelID, logger)
		case "openai":
			impls[p.ProviderName] = openai.New(apiKey, p.ModelID, logger)
		default:
			logger.Warn("app: no concrete provider implementation for configured id", zap.String("provider", string(p.ProviderName)))
		}
	}

	return impls, nil
}

func runStrategy(ctx context.Context, env *strategies.Env, oc orchestrator.OrchestrationConfig, strategy orchestrator.Strategy, text, extractionContext, emailID string) (orchestrator.ExtractionResult, orchestrator.ProviderID, error) {
	dctx := ctx
	var cancel context.CancelFunc
	if oc.OverallTimeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, oc.OverallTimeout)
		defer cancel()
	}

	switch strategy {
	case orchestrator.StrategyFailover:
		return strategies.Failover(dctx, env, text, extractionContext, emailID)
	case orchestrator.StrategyConsensus:
		return strategies.Consensus(dctx, env, text, extractionContext, emailID, oc.ConsensusMinAgreement, oc.FuzzyThreshold, oc.AbstentionConfidenceThreshold, oc.OverallTimeout)
	case orchestrator.StrategyBestMatch:
		return strategies.BestMatch(dctx, env, text, extractionContext, emailID, oc.ConsensusMinAgreement, oc.OverallTimeout)
	default:
		return orchestrator.ExtractionResult{}, "", fmt.Errorf("app: unknown strategy %q", strategy)
	}
}

func buildStatus(env *strategies.Env, breakers map[orchestrator.ProviderID]*circuitbreaker.Breaker) map[orchestrator.ProviderID]orchestrator.ProviderStatus {
	healthSnap := env.Health.Snapshot()
	costSnap := env.Cost.Snapshot()

	out := make(map[orchestrator.ProviderID]orchestrator.ProviderStatus, len(env.Registry.All()))
	for _, cfg := range env.Registry.All() {
		id := cfg.ProviderName
		h := healthSnap[id]
		c := costSnap[id]

		state := "CLOSED"
		eligible := cfg.Enabled && env.Health.IsHealthy(id)
		if b, ok := breakers[id]; ok && b != nil {
			breakerState := b.State()
			state = breakerState.String()
			if env.Metrics != nil {
				env.Metrics.SetCircuitState(string(id), int(breakerState))
			}
		}
		if env.Metrics != nil {
			env.Metrics.SetProviderHealthy(string(id), eligible)
		}

		out[id] = orchestrator.ProviderStatus{
			Health: orchestrator.HealthView{
				SuccessCount:        h.SuccessCount,
				FailureCount:        h.FailureCount,
				ConsecutiveFailures: h.ConsecutiveFailures,
				SuccessRate:         h.SuccessRate(),
				AvgResponseMS:       h.AvgResponseMS,
				LastErrorMessage:    h.LastErrorMessage,
				UpdatedAt:           h.UpdatedAt,
			},
			Cost: orchestrator.CostView{
				TotalCalls:        c.TotalCalls,
				TotalInputTokens:  c.TotalInputTokens,
				TotalOutputTokens: c.TotalOutputTokens,
				TotalCostUSD:      c.TotalCostUSD,
				AvgCostPerCall:    c.AvgCostPerCall(),
			},
			CircuitState: state,
			Eligible:     eligible,
		}
	}
	return out
}

// testProvider calls the provider directly, outside the retry engine
// and without consulting its breaker, and still records the outcome
// in health and cost so Status reflects the probe.
func testProvider(ctx context.Context, env *strategies.Env, id orchestrator.ProviderID) (bool, time.Duration, error) {
	impl, ok := env.Providers[id]
	if !ok {
		return false, 0, fmt.Errorf("app: no provider implementation registered for %s", id)
	}

	runID := uuid.NewString()
	ctx = ctxkeys.WithRunID(ctx, runID)
	env.Logger.Info("app: probing provider", zap.String("provider", string(id)), zap.String("run_id", runID))

	start := time.Now()
	_, usage, err := impl.Extract(ctx, "connectivity check", "", runID)
	latency := time.Since(start)

	cfg, _ := env.Registry.Get(id)

	if err != nil {
		_ = env.Health.RecordFailure(id, err.Error())
		if env.Metrics != nil {
			env.Metrics.RecordRequest(string(id), cfg.ModelID, "failure", latency, usage.InputTokens, usage.OutputTokens, 0)
		}
		return false, latency, err
	}
	_ = env.Health.RecordSuccess(id, float64(latency.Milliseconds()))
	_ = env.Cost.Record(id, usage.InputTokens, usage.OutputTokens)
	if env.Metrics != nil {
		env.Metrics.RecordRequest(string(id), cfg.ModelID, "success", latency, usage.InputTokens, usage.OutputTokens, cost.EstimateCost(cfg, usage.InputTokens, usage.OutputTokens))
	}
	return true, latency, nil
}
