package strategies

import (
	"context"
	"time"

	"github.com/limmutable/orchestrator/orcherr"
	"github.com/limmutable/orchestrator/orchestrator"
)

// BestMatch uses the same dispatch and gating rules as Consensus, but
// returns the single highest-confidence response instead of merging.
func BestMatch(ctx context.Context, env *Env, text, extractionContext, emailID string, consensusMinAgreement int, overallTimeout time.Duration) (orchestrator.ExtractionResult, orchestrator.ProviderID, error) {
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

	var successes []callOutcome
	summary := make(map[string]orcherr.ProviderFailure)
	for _, o := range outcomes {
		if o.err != nil {
			summary[string(o.id)] = orcherr.ProviderFailure{Category: o.category, Message: o.err.Error()}
			continue
		}
		successes = append(successes, o)
	}

	if len(successes) == 0 {
		return orchestrator.ExtractionResult{}, "", &orcherr.AllProvidersFailed{Summary: summary}
	}
	if len(successes) < consensusMinAgreement {
		return orchestrator.ExtractionResult{}, "", &orcherr.InsufficientResponses{Got: len(successes), Need: consensusMinAgreement}
	}

	priority := make(map[orchestrator.ProviderID]int, len(eligible))
	for _, cfg := range env.Registry.All() {
		priority[cfg.ProviderName] = cfg.Priority
	}

	best := successes[0]
	bestScore := meanConfidence(best.result)
	for _, o := range successes[1:] {
		score := meanConfidence(o.result)
		if score > bestScore || (score == bestScore && priority[o.id] < priority[best.id]) {
			best = o
			bestScore = score
		}
	}

	return best.result, best.id, nil
}

func meanConfidence(r orchestrator.ExtractionResult) float64 {
	c := r.Confidence
	return (c.Person + c.Startup + c.Partner + c.Details + c.Date) / 5
}
