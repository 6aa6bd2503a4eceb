package strategies

import (
	"context"

	"github.com/limmutable/orchestrator/orcherr"
	"github.com/limmutable/orchestrator/orchestrator"
	"go.uber.org/zap"
)

// Failover tries providers in priority order until one succeeds. It
// never dispatches more than one call at a time.
func Failover(ctx context.Context, env *Env, text, extractionContext, emailID string) (orchestrator.ExtractionResult, orchestrator.ProviderID, error) {
	summary := make(map[string]orcherr.ProviderFailure)

	for _, cfg := range env.Registry.All() {
		id := cfg.ProviderName
		if !env.eligible(id) {
			continue
		}

		outcome := env.callOne(ctx, id, text, extractionContext, emailID)
		if outcome.err == nil {
			return outcome.result, id, nil
		}

		if outcome.category == orcherr.Critical {
			env.logger().Error("provider returned a critical error, moving to next",
				zap.String("provider", string(id)),
				zap.Error(outcome.err),
			)
		}
		summary[string(id)] = orcherr.ProviderFailure{
			Category: outcome.category,
			Message:  outcome.err.Error(),
		}
	}

	return orchestrator.ExtractionResult{}, "", &orcherr.AllProvidersFailed{Summary: summary}
}
