// Package cost implements the orchestrator's durable cost tracker:
// per-provider token counts and USD cost, persisted as JSON with the
// same atomic write discipline as the health tracker.
package cost

import (
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/limmutable/orchestrator/internal/persist"
	"github.com/limmutable/orchestrator/orchestrator"
	"go.uber.org/zap"
)

// Metrics is the persisted, per-provider record. Unknown keys
// encountered on load are preserved in Extra and re-emitted on save
// via MarshalJSON/UnmarshalJSON below, so auxiliary fields added by a
// future version survive round-trip.
type Metrics struct {
	TotalCalls        int64     `json:"total_calls"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	UpdatedAt         time.Time `json:"updated_at"`

	Extra map[string]any `json:"-"`
}

var metricsKnownKeys = map[string]bool{
	"total_calls":         true,
	"total_input_tokens":  true,
	"total_output_tokens": true,
	"total_cost_usd":      true,
	"updated_at":          true,
}

// MarshalJSON re-merges Extra's keys alongside the named fields so a
// round trip through Load/Save never drops what it didn't understand.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	base, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the named fields normally and stashes any
// other key it finds into Extra.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	type alias Metrics
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Metrics(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if metricsKnownKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = val
	}
	return nil
}

// TotalTokens is a derived field, recomputed on read rather than stored
// twice.
func (m Metrics) TotalTokens() int64 { return m.TotalInputTokens + m.TotalOutputTokens }

// AvgCostPerCall is a derived field; 0 with no calls yet.
func (m Metrics) AvgCostPerCall() float64 {
	if m.TotalCalls == 0 {
		return 0
	}
	return m.TotalCostUSD / float64(m.TotalCalls)
}

// Tracker is process-wide, keyed by provider id, backed by a single
// JSON file. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	path       string
	pricing    map[orchestrator.ProviderID]pricing
	byProvider map[orchestrator.ProviderID]*Metrics
	logger     *zap.Logger
}

type pricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// New loads path if present and primes per-provider pricing from
// configs. If a provider has no configured pricing, cost stays 0 but
// token counts are still recorded.
func New(path string, configs []orchestrator.ProviderConfig, logger *zap.Logger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		path:       path,
		pricing:    make(map[orchestrator.ProviderID]pricing, len(configs)),
		byProvider: make(map[orchestrator.ProviderID]*Metrics),
		logger:     logger,
	}
	for _, cfg := range configs {
		t.pricing[cfg.ProviderName] = pricing{
			inputPerMillion:  cfg.InputTokenPrice,
			outputPerMillion: cfg.OutputTokenPrice,
		}
	}
	if err := persist.LoadJSON(path, &t.byProvider, logger); err != nil {
		return nil, err
	}
	if t.byProvider == nil {
		t.byProvider = make(map[orchestrator.ProviderID]*Metrics)
	}
	return t, nil
}

// Record adds one call's usage and recomputes the derived totals:
// cost = (in/1e6)*input_price + (out/1e6)*output_price.
func (t *Tracker) Record(id orchestrator.ProviderID, inputTokens, outputTokens int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byProvider[id]
	if !ok {
		m = &Metrics{}
		t.byProvider[id] = m
	}

	m.TotalCalls++
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
	m.TotalCostUSD += t.callCost(id, inputTokens, outputTokens)
	m.UpdatedAt = time.Now().UTC()

	if t.path == "" {
		return nil
	}
	return persist.SaveJSON(t.path, t.byProvider)
}

func (t *Tracker) callCost(id orchestrator.ProviderID, inputTokens, outputTokens int64) float64 {
	p, ok := t.pricing[id]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1_000_000)*p.inputPerMillion + (float64(outputTokens)/1_000_000)*p.outputPerMillion
}

// EstimateCost computes one call's USD cost directly from a provider's
// configured per-million-token pricing. Callers that need a cost figure
// before (or without) going through Record — e.g. for a metrics label —
// use this so the formula lives in exactly one place.
func EstimateCost(cfg orchestrator.ProviderConfig, inputTokens, outputTokens int64) float64 {
	return (float64(inputTokens)/1_000_000)*cfg.InputTokenPrice + (float64(outputTokens)/1_000_000)*cfg.OutputTokenPrice
}

// Reset empties one provider's record. Used by tests and admin tooling.
func (t *Tracker) Reset(id orchestrator.ProviderID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byProvider, id)
	if t.path == "" {
		return nil
	}
	return persist.SaveJSON(t.path, t.byProvider)
}

// Snapshot returns a deep copy of all tracked providers' metrics.
func (t *Tracker) Snapshot() map[orchestrator.ProviderID]Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[orchestrator.ProviderID]Metrics, len(t.byProvider))
	for id, m := range t.byProvider {
		c := *m
		c.Extra = maps.Clone(m.Extra)
		out[id] = c
	}
	return out
}
