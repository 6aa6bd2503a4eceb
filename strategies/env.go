// Package strategies implements the three orchestration strategies —
// failover, consensus, and best-match — that compose the registry,
// trackers, breakers, and retry engine into a single Extract call.
package strategies

import (
	"context"
	"errors"
	"time"

	"github.com/limmutable/orchestrator/circuitbreaker"
	"github.com/limmutable/orchestrator/cost"
	"github.com/limmutable/orchestrator/errclass"
	"github.com/limmutable/orchestrator/health"
	"github.com/limmutable/orchestrator/internal/ctxkeys"
	"github.com/limmutable/orchestrator/internal/metrics"
	"github.com/limmutable/orchestrator/orcherr"
	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/limmutable/orchestrator/registry"
	"github.com/limmutable/orchestrator/retry"
	"go.uber.org/zap"
)

// Env bundles everything a strategy needs to dispatch calls and record
// their outcomes. It holds no state of its own beyond references; the
// same Env is reused across requests.
type Env struct {
	Registry    *registry.Registry
	Providers   map[orchestrator.ProviderID]orchestrator.Provider
	Health      *health.Tracker
	Cost        *cost.Tracker
	Breakers    map[orchestrator.ProviderID]*circuitbreaker.Breaker
	QPS         *health.QPSLimiter
	RetryPolicy retry.Policy
	Logger      *zap.Logger
	// Metrics is optional; when nil, no Prometheus recording happens.
	Metrics *metrics.Collector
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// eligible reports whether provider id should be attempted right now:
// enabled in config, not unhealthy, breaker not open, and under its QPS
// budget.
func (e *Env) eligible(id orchestrator.ProviderID) bool {
	cfg, ok := e.Registry.Get(id)
	if !ok || !cfg.Enabled {
		return false
	}
	if e.Health != nil && !e.Health.IsHealthy(id) {
		return false
	}
	if b, ok := e.Breakers[id]; ok && b != nil {
		if !b.Allow() {
			return false
		}
	}
	if e.QPS != nil && !e.QPS.Allow(id) {
		return false
	}
	return true
}

// eligibleProviders returns eligible provider ids, priority-ordered.
func (e *Env) eligibleProviders() []orchestrator.ProviderID {
	var out []orchestrator.ProviderID
	for _, cfg := range e.Registry.All() {
		if e.eligible(cfg.ProviderName) {
			out = append(out, cfg.ProviderName)
		}
	}
	return out
}

func (e *Env) breaker(id orchestrator.ProviderID) retry.Breaker {
	b, ok := e.Breakers[id]
	if !ok || b == nil {
		return nil
	}
	return b
}

// callOutcome is the bookkeeping result of dispatching one provider
// call: either a result with the success-rate snapshot the merge
// algorithm needs, or an error with its classification.
type callOutcome struct {
	id       orchestrator.ProviderID
	result   orchestrator.ExtractionResult
	usage    orchestrator.TokenUsage
	rate     float64
	err      error
	category orcherr.Category
}

// callOne dispatches a single provider call through the retry engine,
// recording health and cost on success and health on final failure.
// Health/cost are recorded exactly once per call regardless of how many
// retry attempts it took.
func (e *Env) callOne(ctx context.Context, id orchestrator.ProviderID, text, extractionContext, emailID string) callOutcome {
	provider, ok := e.Providers[id]
	if !ok {
		err := errors.New("no provider implementation registered for " + string(id))
		return callOutcome{id: id, err: err, category: orcherr.Critical}
	}

	var usage orchestrator.TokenUsage
	var latencyMS float64
	var latency time.Duration

	cfg, cfgFound := e.Registry.Get(id)

	policy := e.RetryPolicy
	if cfgFound {
		policy.MaxAttempts = cfg.MaxRetries + 1
		policy.PerAttemptTimeout = cfg.Timeout
	}

	traceID, ok := ctxkeys.TraceID(ctx)
	if !ok {
		traceID = emailID
		ctx = ctxkeys.WithTraceID(ctx, traceID)
	}
	callLogger := e.logger().With(zap.String("provider", string(id)), zap.String("trace_id", traceID))

	result, err := retry.Do(ctx, policy, e.breaker(id), callLogger, func(attemptCtx context.Context) (orchestrator.ExtractionResult, error) {
		start := time.Now()
		res, u, err := provider.Extract(attemptCtx, text, extractionContext, emailID)
		latency = time.Since(start)
		latencyMS = float64(latency.Milliseconds())
		usage = u
		return res, err
	})

	successRate := 1.0
	if m, ok := e.Health.Snapshot()[id]; ok {
		successRate = m.SuccessRate()
	}

	if err != nil {
		if e.Health != nil {
			_ = e.Health.RecordFailure(id, err.Error())
		}
		if e.Metrics != nil {
			e.Metrics.RecordRequest(string(id), cfg.ModelID, "failure", latency, usage.InputTokens, usage.OutputTokens, 0)
			if m, ok := e.Health.Snapshot()[id]; ok {
				e.Metrics.SetConsecutiveErrors(string(id), m.ConsecutiveFailures)
			}
		}
		return callOutcome{id: id, err: err, category: errclass.Classify(err), rate: successRate}
	}

	if e.Health != nil {
		_ = e.Health.RecordSuccess(id, latencyMS)
	}
	if e.Cost != nil {
		_ = e.Cost.Record(id, usage.InputTokens, usage.OutputTokens)
	}
	if e.Metrics != nil {
		e.Metrics.RecordRequest(string(id), cfg.ModelID, "success", latency, usage.InputTokens, usage.OutputTokens, cost.EstimateCost(cfg, usage.InputTokens, usage.OutputTokens))
		e.Metrics.SetConsecutiveErrors(string(id), 0)
	}
	return callOutcome{id: id, result: result, usage: usage, rate: successRate}
}
