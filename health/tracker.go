// Package health implements the orchestrator's durable health tracker:
// per-provider success/failure counts, rolling latency,
// consecutive-failure streaks, persisted as JSON.
package health

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
	SuccessCount        int64     `json:"success_count"`
	FailureCount        int64     `json:"failure_count"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	AvgResponseMS       float64   `json:"avg_response_ms"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	LastErrorMessage    string    `json:"last_error_message,omitempty"`
	CircuitState        string    `json:"circuit_breaker_state,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`

	Extra map[string]any `json:"-"`
}

// metricsKnownKeys are the JSON names of Metrics' own fields, used by
// UnmarshalJSON to decide which keys belong in Extra instead.
var metricsKnownKeys = map[string]bool{
	"success_count":         true,
	"failure_count":         true,
	"consecutive_failures":  true,
	"avg_response_ms":       true,
	"last_success_at":       true,
	"last_failure_at":       true,
	"last_error_message":    true,
	"circuit_breaker_state": true,
	"updated_at":            true,
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

// SuccessRate is success/(success+failure), or 0 with no calls yet.
func (m Metrics) SuccessRate() float64 {
	total := m.SuccessCount + m.FailureCount
	if total == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(total)
}

const maxErrorMessageLen = 500

// smoothingAlpha is the exponential-smoothing factor for AvgResponseMS:
// avg' = alpha*latest + (1-alpha)*avg.
const smoothingAlpha = 0.1

// Tracker is process-wide, keyed by provider id, backed by a single
// JSON file. Safe for concurrent use.
type Tracker struct {
	mu                 sync.Mutex
	path               string
	unhealthyThreshold int64
	logger             *zap.Logger
	byProvider         map[orchestrator.ProviderID]*Metrics
}

// New loads path if present (see persist.LoadJSON for corrupt-file
// handling) and returns a ready tracker.
func New(path string, unhealthyThreshold int, logger *zap.Logger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if unhealthyThreshold <= 0 {
		unhealthyThreshold = 5
	}
	t := &Tracker{
		path:               path,
		unhealthyThreshold: int64(unhealthyThreshold),
		logger:              logger,
		byProvider:          make(map[orchestrator.ProviderID]*Metrics),
	}
	if err := persist.LoadJSON(path, &t.byProvider, logger); err != nil {
		return nil, err
	}
	if t.byProvider == nil {
		t.byProvider = make(map[orchestrator.ProviderID]*Metrics)
	}
	return t, nil
}

func (t *Tracker) record(id orchestrator.ProviderID) *Metrics {
	m, ok := t.byProvider[id]
	if !ok {
		m = &Metrics{}
		t.byProvider[id] = m
	}
	return m
}

// RecordSuccess updates the rolling latency, resets the consecutive-
// failure streak, and persists.
func (t *Tracker) RecordSuccess(id orchestrator.ProviderID, latencyMS float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.record(id)
	m.SuccessCount++
	m.ConsecutiveFailures = 0
	m.LastSuccessAt = time.Now().UTC()
	m.UpdatedAt = m.LastSuccessAt
	if m.SuccessCount+m.FailureCount == 1 {
		m.AvgResponseMS = latencyMS
	} else {
		m.AvgResponseMS = smoothingAlpha*latencyMS + (1-smoothingAlpha)*m.AvgResponseMS
	}

	return t.saveLocked()
}

// RecordFailure increments the failure and consecutive-failure
// counters, truncates the error message, and persists.
func (t *Tracker) RecordFailure(id orchestrator.ProviderID, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.record(id)
	m.FailureCount++
	m.ConsecutiveFailures++
	if len(errMsg) > maxErrorMessageLen {
		errMsg = errMsg[:maxErrorMessageLen]
	}
	m.LastErrorMessage = errMsg
	m.LastFailureAt = time.Now().UTC()
	m.UpdatedAt = m.LastFailureAt

	return t.saveLocked()
}

// SetCircuitState mirrors a breaker transition into the health record
// for observability; the mirror is derived, not authoritative. It does
// not trigger a persist by itself; the value reaches the file with the
// next RecordSuccess/RecordFailure.
func (t *Tracker) SetCircuitState(id orchestrator.ProviderID, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.record(id)
	m.CircuitState = state
}

// IsHealthy reports consecutive_failures < unhealthy_threshold.
// Unknown providers are considered healthy (no evidence otherwise).
func (t *Tracker) IsHealthy(id orchestrator.ProviderID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byProvider[id]
	if !ok {
		return true
	}
	return m.ConsecutiveFailures < t.unhealthyThreshold
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

// saveLocked must be called with t.mu held.
func (t *Tracker) saveLocked() error {
	if t.path == "" {
		return nil
	}
	return persist.SaveJSON(t.path, t.byProvider)
}
