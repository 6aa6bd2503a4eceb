package health

import (
	"sync"

	"github.com/limmutable/orchestrator/orchestrator"
	"golang.org/x/time/rate"
)

// QPSLimiter is a per-provider QPS gate built on golang.org/x/time/rate.
// A provider with MaxQPS<=0 is unlimited. This is additive in-memory
// eligibility state: it changes no durable HealthMetrics field.
type QPSLimiter struct {
	mu       sync.Mutex
	limiters map[orchestrator.ProviderID]*rate.Limiter
}

// NewQPSLimiter builds one rate.Limiter per provider with MaxQPS>0.
func NewQPSLimiter(configs []orchestrator.ProviderConfig) *QPSLimiter {
	q := &QPSLimiter{limiters: make(map[orchestrator.ProviderID]*rate.Limiter)}
	for _, cfg := range configs {
		if cfg.MaxQPS > 0 {
			q.limiters[cfg.ProviderName] = rate.NewLimiter(rate.Limit(cfg.MaxQPS), int(cfg.MaxQPS)+1)
		}
	}
	return q
}

// Allow reports whether a call to id may proceed right now. Providers
// with no configured limit are always allowed.
func (q *QPSLimiter) Allow(id orchestrator.ProviderID) bool {
	q.mu.Lock()
	l, ok := q.limiters[id]
	q.mu.Unlock()
	if !ok {
		return true
	}
	return l.Allow()
}
