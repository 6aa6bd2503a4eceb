package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S6: input_token_price=3.0, output_token_price=15.0 (USD per 1e6).
// One call with in=1_000_000, out=500_000 => cost = 3.0 + 7.5 = 10.5;
// after a second identical call total=21.0; avg_cost_per_call=10.5.
func TestScenario_CostCalculation(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "cost_metrics.json"), []orchestrator.ProviderConfig{
		{ProviderName: "claude", InputTokenPrice: 3.0, OutputTokenPrice: 15.0},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Record("claude", 1_000_000, 500_000))
	m := tr.Snapshot()["claude"]
	assert.InDelta(t, 10.5, m.TotalCostUSD, 1e-9)

	require.NoError(t, tr.Record("claude", 1_000_000, 500_000))
	m = tr.Snapshot()["claude"]
	assert.InDelta(t, 21.0, m.TotalCostUSD, 1e-9)
	assert.InDelta(t, 10.5, m.AvgCostPerCall(), 1e-9)
	assert.Equal(t, int64(2), m.TotalCalls)
	assert.Equal(t, int64(3_000_000), m.TotalTokens())
}

func TestUnpricedProviderRecordsTokensNotCost(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "cost_metrics.json"), nil, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Record("mystery", 100, 50))
	m := tr.Snapshot()["mystery"]
	assert.Equal(t, float64(0), m.TotalCostUSD)
	assert.Equal(t, int64(150), m.TotalTokens())
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "cost_metrics.json"), nil, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Record("gemini", 10, 10))
	require.NoError(t, tr.Reset("gemini"))
	_, ok := tr.Snapshot()["gemini"]
	assert.False(t, ok)
}

func TestMetrics_UnknownKeysSurviveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cost_metrics.json")

	raw := `{"claude":{"total_calls":2,"total_cost_usd":10.5,"updated_at":"2026-01-01T00:00:00Z","future_field":"kept","future_score":2.5}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	tr, err := New(path, nil, nil)
	require.NoError(t, err)

	m := tr.Snapshot()["claude"]
	assert.Equal(t, int64(2), m.TotalCalls)
	assert.Equal(t, "kept", m.Extra["future_field"])
	assert.Equal(t, 2.5, m.Extra["future_score"])

	require.NoError(t, tr.Record("claude", 1, 1))

	raw2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw2), `"future_field": "kept"`)
	assert.Contains(t, string(raw2), `"future_score": 2.5`)
}

func TestProperty_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cost_metrics.json")
	cfgs := []orchestrator.ProviderConfig{{ProviderName: "claude", InputTokenPrice: 3, OutputTokenPrice: 15}}

	tr1, err := New(path, cfgs, nil)
	require.NoError(t, err)
	require.NoError(t, tr1.Record("claude", 1000, 500))

	tr2, err := New(path, cfgs, nil)
	require.NoError(t, err)

	assert.Equal(t, tr1.Snapshot(), tr2.Snapshot())
}
