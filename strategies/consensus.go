package strategies

import (
	"context"
	"time"

	"github.com/limmutable/orchestrator/merge"
	"github.com/limmutable/orchestrator/orcherr"
	"github.com/limmutable/orchestrator/orchestrator"
	"golang.org/x/sync/errgroup"
)

// dispatchAll fans out one call per eligible provider, all sharing
// ctx's deadline, and waits for every one to finish or be cancelled.
// No ordering is guaranteed across providers; callers must not rely on
// outcome order beyond provider id. Each call's own error is carried in
// its callOutcome, not returned to the group, so one provider failing
// never cancels the others.
func dispatchAll(ctx context.Context, env *Env, eligible []orchestrator.ProviderID, text, extractionContext, emailID string) []callOutcome {
	outcomes := make([]callOutcome, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range eligible {
		i, id := i, id
		g.Go(func() error {
			outcomes[i] = env.callOne(gctx, id, text, extractionContext, emailID)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Consensus dispatches to every eligible provider in parallel (bounded
// by overallTimeout) and merges the successful responses.
func Consensus(ctx context.Context, env *Env, text, extractionContext, emailID string, consensusMinAgreement int, fuzzyThreshold, abstentionThreshold float64, overallTimeout time.Duration) (orchestrator.ExtractionResult, orchestrator.ProviderID, error) {
	if consensusMinAgreement <= 0 {
		consensusMinAgreement = 2
	}

	eligible := env.eligibleProviders()
	if len(eligible) < consensusMinAgreement {
		return orchestrator.ExtractionResult{}, "", &orcherr.AllProvidersFailed{
			Summary: insufficientEligibleSummary(env, eligible),
		}
	}

	dctx := ctx
	var cancel context.CancelFunc
	if overallTimeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, overallTimeout)
		defer cancel()
	}

	outcomes := dispatchAll(dctx, env, eligible, text, extractionContext, emailID)

	var inputs []merge.Input
	summary := make(map[string]orcherr.ProviderFailure)
	for _, o := range outcomes {
		if o.err != nil {
			summary[string(o.id)] = orcherr.ProviderFailure{Category: o.category, Message: o.err.Error()}
			continue
		}
		inputs = append(inputs, merge.Input{Result: o.result, SuccessRate: o.rate})
	}

	if len(inputs) == 0 {
		return orchestrator.ExtractionResult{}, "", &orcherr.AllProvidersFailed{Summary: summary}
	}
	if len(inputs) < consensusMinAgreement {
		return orchestrator.ExtractionResult{}, "", &orcherr.InsufficientResponses{Got: len(inputs), Need: consensusMinAgreement}
	}

	merged := merge.Merge(inputs, merge.Config{FuzzyThreshold: fuzzyThreshold, AbstentionConfidenceThreshold: abstentionThreshold}, emailID, time.Now())
	return merged, "consensus", nil
}

func insufficientEligibleSummary(env *Env, eligible []orchestrator.ProviderID) map[string]orcherr.ProviderFailure {
	eligibleSet := make(map[orchestrator.ProviderID]bool, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = true
	}
	summary := make(map[string]orcherr.ProviderFailure)
	for _, cfg := range env.Registry.All() {
		if eligibleSet[cfg.ProviderName] {
			continue
		}
		summary[string(cfg.ProviderName)] = orcherr.ProviderFailure{
			Category: orcherr.Permanent,
			Message:  "not eligible: disabled, unhealthy, circuit open, or rate-limited",
		}
	}
	return summary
}
