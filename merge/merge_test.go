package merge

import (
	"testing"
	"time"

	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func strp(s string) *string { return &s }

func input(provider string, successRate float64, startup, partner *string, startupConf, partnerConf float64) Input {
	return Input{
		Result: orchestrator.ExtractionResult{
			Startup:    startup,
			Partner:    partner,
			Confidence: orchestrator.FieldConfidence{Startup: startupConf, Partner: partnerConf},
			Provider:   orchestrator.ProviderID(provider),
		},
		SuccessRate: successRate,
	}
}

func defaultCfg() Config {
	return Config{FuzzyThreshold: 0.85, AbstentionConfidenceThreshold: 0.25}
}

func TestMerge_SingleInputIsIdentity(t *testing.T) {
	in := orchestrator.ExtractionResult{
		Startup:    strp("본봄"),
		Confidence: orchestrator.FieldConfidence{Startup: 0.9},
		Provider:   "gemini",
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := Merge([]Input{{Result: in, SuccessRate: 1.0}}, defaultCfg(), "email-1", now)

	assert.Equal(t, "본봄", *out.Startup)
	assert.Equal(t, 0.9, out.Confidence.Startup)
	assert.Equal(t, orchestrator.ProviderID("consensus"), out.Provider)
	assert.Equal(t, "email-1", out.EmailID)
	assert.Equal(t, now, out.ExtractedAt)
}

// Three providers agree exactly on startup, and agree up to fuzzy
// matching on partner (two of three share a substring variant of the
// same company name). All three values land in one winning bucket, so
// agree=1.0 applies no penalty and the recomputed confidence equals the
// in-bucket mean.
func TestMerge_UnanimousAndFuzzyAgreement(t *testing.T) {
	inputs := []Input{
		input("gemini", 0.95, strp("본봄"), strp("신세계"), 0.92, 0.80),
		input("claude", 0.90, strp("본봄"), strp("신세계인터내셔널"), 0.89, 0.85),
		input("openai", 0.85, strp("본봄"), strp("신세계"), 0.93, 0.78),
	}
	now := time.Now()
	out := Merge(inputs, defaultCfg(), "email-2", now)

	require.NotNil(t, out.Startup)
	assert.Equal(t, "본봄", *out.Startup)
	assert.InDelta(t, 0.913, out.Confidence.Startup, 0.01)

	require.NotNil(t, out.Partner)
}

func TestMerge_MajorityOutvotesMinority(t *testing.T) {
	inputs := []Input{
		input("gemini", 0.9, strp("Acme Corp"), nil, 0.8, 0),
		input("claude", 0.9, strp("Acme Corp"), nil, 0.8, 0),
		input("openai", 0.9, strp("Beta Inc"), nil, 0.95, 0),
	}
	out := Merge(inputs, defaultCfg(), "email-3", time.Now())
	require.NotNil(t, out.Startup)
	assert.Equal(t, "Acme Corp", *out.Startup)
}

func TestMerge_WeightedByConfidenceAndSuccessRate(t *testing.T) {
	// Two singleton buckets of equal size (1 each); the bucket whose
	// member has the higher confidence*success_rate product should win.
	inputs := []Input{
		input("gemini", 1.0, strp("Strong Co"), nil, 0.95, 0),
		input("claude", 0.2, strp("Weak Co"), nil, 0.99, 0),
	}
	out := Merge(inputs, defaultCfg(), "email-4", time.Now())
	require.NotNil(t, out.Startup)
	assert.Equal(t, "Strong Co", *out.Startup)
}

func TestMerge_NilValuesFormTheirOwnBucket(t *testing.T) {
	inputs := []Input{
		input("gemini", 0.9, nil, nil, 0, 0),
		input("claude", 0.9, nil, nil, 0, 0),
		input("openai", 0.9, strp("Acme"), nil, 0.9, 0),
	}
	out := Merge(inputs, defaultCfg(), "email-5", time.Now())
	assert.Nil(t, out.Startup)
}

func TestMerge_AbstainsBelowConfidenceThreshold(t *testing.T) {
	cfg := Config{FuzzyThreshold: 0.85, AbstentionConfidenceThreshold: 0.9}
	inputs := []Input{
		input("gemini", 0.9, strp("Acme"), nil, 0.3, 0),
		input("claude", 0.9, strp("Zylo"), nil, 0.3, 0),
	}
	out := Merge(inputs, cfg, "email-6", time.Now())
	assert.Nil(t, out.Startup)
	assert.Equal(t, 0.0, out.Confidence.Startup)
}

func TestMerge_TieBreaksByLowestInputIndex(t *testing.T) {
	inputs := []Input{
		input("gemini", 0.5, strp("Acme"), nil, 0.5, 0),
		input("claude", 0.5, strp("Zylo"), nil, 0.5, 0),
	}
	out := Merge(inputs, defaultCfg(), "email-7", time.Now())
	require.NotNil(t, out.Startup)
	assert.Equal(t, "Acme", *out.Startup)
}

// Merge is a pure function: calling it twice on the same inputs (at
// the same instant) gives byte-identical output.
func TestProperty_MergeIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(rt, "n")
		inputs := make([]Input, n)
		for i := 0; i < n; i++ {
			var startup *string
			if rapid.Bool().Draw(rt, "hasStartup") {
				s := rapid.StringMatching(`[A-Za-z]{1,10}`).Draw(rt, "startup")
				startup = &s
			}
			conf := rapid.Float64Range(0, 1).Draw(rt, "conf")
			rate := rapid.Float64Range(0, 1).Draw(rt, "rate")
			inputs[i] = input("p", rate, startup, nil, conf, 0)
		}
		now := time.Now()
		out1 := Merge(inputs, defaultCfg(), "e", now)
		out2 := Merge(inputs, defaultCfg(), "e", now)
		assert.Equal(rt, out1, out2)
	})
}

func TestProperty_FuzzyBucketingRespectsThreshold(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.Float64Range(0, 1).Draw(rt, "threshold")
		a := rapid.StringMatching(`[A-Za-z]{1,8}`).Draw(rt, "a")
		b := rapid.StringMatching(`[A-Za-z]{1,8}`).Draw(rt, "b")
		sim := JaroWinkler(a, b)
		matched := FuzzyMatch(&a, &b, threshold)
		assert.Equal(rt, sim >= threshold, matched)
	})
}
