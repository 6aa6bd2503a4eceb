package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Facade is the single entry point embedding applications use:
// Extract, Status, SetStrategy, TestProvider. It owns no business
// logic itself — every method delegates to the strategies/trackers the
// caller wires in via Deps — but it is the one place that resolves
// "current strategy" against a request's optional override and holds
// the read/write lock guarding it.
type Facade struct {
	mu       sync.RWMutex
	strategy Strategy

	deps Deps
}

// Deps is everything the facade needs from the rest of the module. It
// is defined here (rather than imported) so that orchestrator stays
// free of a dependency on strategies/health/cost/circuitbreaker; the
// caller (cmd/orchctl, or any embedding application) supplies a
// concrete implementation built from those packages.
type Deps struct {
	// RunStrategy executes one of StrategyFailover/Consensus/BestMatch
	// and returns its merged or chosen result plus a provider/strategy
	// attribution tag.
	RunStrategy func(ctx context.Context, strategy Strategy, text, extractionContext, emailID string) (ExtractionResult, ProviderID, error)

	// Status returns the current per-provider status snapshot.
	Status func() map[ProviderID]ProviderStatus

	// TestProviderFn bypasses the breaker and retry engine to probe one
	// provider directly, recording the outcome in health/cost/metrics.
	TestProviderFn func(ctx context.Context, id ProviderID) (bool, time.Duration, error)
}

// ProviderStatus is the union Status() reports per provider: the
// health and cost snapshots plus the breaker's current state name.
type ProviderStatus struct {
	Health       HealthView  `json:"health"`
	Cost         CostView    `json:"cost"`
	CircuitState string      `json:"circuit_state"`
	Eligible     bool        `json:"eligible"`
}

// HealthView is the subset of health.Metrics the facade re-exports
// without importing the health package.
type HealthView struct {
	SuccessCount        int64     `json:"success_count"`
	FailureCount        int64     `json:"failure_count"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	SuccessRate         float64   `json:"success_rate"`
	AvgResponseMS       float64   `json:"avg_response_ms"`
	LastErrorMessage    string    `json:"last_error_message,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CostView is the subset of cost.Metrics the facade re-exports.
type CostView struct {
	TotalCalls        int64   `json:"total_calls"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	AvgCostPerCall    float64 `json:"avg_cost_per_call"`
}

// NewFacade builds a Facade that starts on defaultStrategy and
// delegates every operation to deps.
func NewFacade(defaultStrategy Strategy, deps Deps) *Facade {
	return &Facade{strategy: defaultStrategy, deps: deps}
}

// Extract runs the current strategy (or the explicit override) against
// text. An empty override keeps whatever SetStrategy last configured.
func (f *Facade) Extract(ctx context.Context, text string, override Strategy, emailID, extractionContext string) (ExtractionResult, ProviderID, error) {
	strategy := override
	if strategy == "" {
		f.mu.RLock()
		strategy = f.strategy
		f.mu.RUnlock()
	}
	if !validStrategy(strategy) {
		return ExtractionResult{}, "", fmt.Errorf("orchestrator: invalid strategy %q", strategy)
	}
	return f.deps.RunStrategy(ctx, strategy, text, extractionContext, emailID)
}

// Status returns the per-provider health/cost/circuit snapshot.
func (f *Facade) Status() map[ProviderID]ProviderStatus {
	return f.deps.Status()
}

// SetStrategy changes the default strategy used by Extract calls that
// pass no explicit override. It returns an error and leaves the
// current strategy unchanged if strategy is not one of the three
// recognized values.
func (f *Facade) SetStrategy(strategy Strategy) error {
	if !validStrategy(strategy) {
		return fmt.Errorf("orchestrator: invalid strategy %q", strategy)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategy = strategy
	return nil
}

// CurrentStrategy returns the strategy Extract uses when called
// without an explicit override.
func (f *Facade) CurrentStrategy() Strategy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.strategy
}

// TestProvider probes one provider directly, bypassing its breaker.
func (f *Facade) TestProvider(ctx context.Context, id ProviderID) (bool, time.Duration, error) {
	return f.deps.TestProviderFn(ctx, id)
}

func validStrategy(s Strategy) bool {
	switch s {
	case StrategyFailover, StrategyConsensus, StrategyBestMatch:
		return true
	default:
		return false
	}
}
