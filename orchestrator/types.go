// Package orchestrator is the facade and shared data model for the
// multi-provider LLM extraction coordinator. It ties together the
// registry, strategies, and health/cost trackers behind the single
// Extract/Status/SetStrategy/TestProvider surface.
package orchestrator

import (
	"context"
	"time"
)

// ProviderID is an opaque identifier from a fixed, configured
// enumeration (at least GEMINI, CLAUDE, OPENAI).
type ProviderID string

// Strategy selects which orchestration algorithm handles a request.
type Strategy string

const (
	StrategyFailover   Strategy = "failover"
	StrategyConsensus  Strategy = "consensus"
	StrategyBestMatch  Strategy = "best_match"
)

// ProviderConfig is immutable for a process lifetime.
type ProviderConfig struct {
	ProviderName      ProviderID    `yaml:"provider_name" json:"provider_name"`
	DisplayName       string        `yaml:"display_name" json:"display_name"`
	ModelID           string        `yaml:"model_id" json:"model_id"`
	CredentialRef     string        `yaml:"credential_ref" json:"credential_ref"`
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	Priority          int           `yaml:"priority" json:"priority"` // >=1, 1 is highest
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`   // 5s-300s
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"` // 0-5
	InputTokenPrice   float64       `yaml:"input_token_price" json:"input_token_price"`   // USD per 1e6 tokens
	OutputTokenPrice  float64       `yaml:"output_token_price" json:"output_token_price"` // USD per 1e6 tokens
	MaxQPS            float64       `yaml:"max_qps" json:"max_qps"`                       // 0 = unlimited
}

// Normalize fills in documented defaults/bounds in place.
func (c *ProviderConfig) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Timeout < 5*time.Second {
		c.Timeout = 5 * time.Second
	}
	if c.Timeout > 300*time.Second {
		c.Timeout = 300 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 5 {
		c.MaxRetries = 5
	}
	if c.Priority < 1 {
		c.Priority = 1
	}
}

// ExtractionResult is the five-field structured record every provider
// and the merge algorithm produce.
type ExtractionResult struct {
	EmailID     string               `json:"email_id,omitempty"`
	Person      *string              `json:"person"`
	Startup     *string              `json:"startup"`
	Partner     *string              `json:"partner"`
	Details     *string              `json:"details"`
	Date        *string              `json:"date"` // normalized calendar date, or nil
	Confidence  FieldConfidence      `json:"confidence"`
	ExtractedAt time.Time            `json:"extracted_at"`
	Provider    ProviderID           `json:"provider,omitempty"`
}

// FieldConfidence carries one float in [0,1] per field, all well-defined
// even when the paired value is null.
type FieldConfidence struct {
	Person  float64 `json:"person"`
	Startup float64 `json:"startup"`
	Partner float64 `json:"partner"`
	Details float64 `json:"details"`
	Date    float64 `json:"date"`
}

// Fields returns the five (name, value, confidence) triples in the
// fixed order the merge algorithm iterates over.
func (r *ExtractionResult) Fields() [5]fieldView {
	return [5]fieldView{
		{"person", r.Person, r.Confidence.Person},
		{"startup", r.Startup, r.Confidence.Startup},
		{"partner", r.Partner, r.Confidence.Partner},
		{"details", r.Details, r.Confidence.Details},
		{"date", r.Date, r.Confidence.Date},
	}
}

type fieldView struct {
	Name       string
	Value      *string
	Confidence float64
}

// TokenUsage is the two non-negative counters every provider call
// reports.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// OrchestrationConfig is the process-wide tuning surface.
type OrchestrationConfig struct {
	DefaultStrategy               Strategy      `yaml:"default_strategy" json:"default_strategy"`
	ProviderPriority               []ProviderID  `yaml:"provider_priority" json:"provider_priority"`
	OverallTimeout                 time.Duration `yaml:"overall_timeout" json:"overall_timeout"`
	UnhealthyThreshold              int          `yaml:"unhealthy_threshold" json:"unhealthy_threshold"` // default 5
	ConsensusMinAgreement           int          `yaml:"consensus_min_agreement" json:"consensus_min_agreement"` // default 2
	FuzzyThreshold                  float64      `yaml:"fuzzy_threshold" json:"fuzzy_threshold"` // default 0.85
	AbstentionConfidenceThreshold   float64      `yaml:"abstention_confidence_threshold" json:"abstention_confidence_threshold"` // default 0.25
	CircuitOpenTimeout               time.Duration `yaml:"circuit_open_timeout" json:"circuit_open_timeout"`
	HalfOpenMaxCalls                 int          `yaml:"half_open_max_calls" json:"half_open_max_calls"`
	FailureThreshold                 int          `yaml:"failure_threshold" json:"failure_threshold"` // default 5
	SuccessThreshold                 int          `yaml:"success_threshold" json:"success_threshold"` // default 2
}

// DefaultOrchestrationConfig matches the documented defaults.
func DefaultOrchestrationConfig() OrchestrationConfig {
	return OrchestrationConfig{
		DefaultStrategy:               StrategyFailover,
		OverallTimeout:                 90 * time.Second,
		UnhealthyThreshold:             5,
		ConsensusMinAgreement:          2,
		FuzzyThreshold:                 0.85,
		AbstentionConfidenceThreshold:  0.25,
		CircuitOpenTimeout:             60 * time.Second,
		HalfOpenMaxCalls:               3,
		FailureThreshold:               5,
		SuccessThreshold:               2,
	}
}

// Provider is the opaque per-vendor operation the orchestrator
// consumes. Transport, prompt template, and response parsing are the
// concern of concrete implementations under providers/.
type Provider interface {
	// Extract turns raw text (plus optional context and email_id) into
	// a structured result. context may be empty; implementations must
	// tolerate its absence.
	Extract(ctx context.Context, text string, extractionContext string, emailID string) (ExtractionResult, TokenUsage, error)
	Name() ProviderID
}
