package health

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSuccessAndFailure(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "health_metrics.json"), 5, nil)
	require.NoError(t, err)

	require.NoError(t, tr.RecordSuccess("gemini", 120))
	require.NoError(t, tr.RecordFailure("gemini", "boom"))

	snap := tr.Snapshot()
	m := snap["gemini"]
	assert.Equal(t, int64(1), m.SuccessCount)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.Equal(t, int64(1), m.ConsecutiveFailures)
	assert.Equal(t, "boom", m.LastErrorMessage)
}

func TestIsHealthy(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "health_metrics.json"), 3, nil)
	require.NoError(t, err)

	assert.True(t, tr.IsHealthy("gemini"))
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RecordFailure("gemini", "err"))
	}
	assert.False(t, tr.IsHealthy("gemini"))

	require.NoError(t, tr.RecordSuccess("gemini", 10))
	assert.True(t, tr.IsHealthy("gemini"))
}

func TestErrorMessageTruncated(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "health_metrics.json"), 5, nil)
	require.NoError(t, err)

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, tr.RecordFailure("gemini", string(long)))
	assert.Len(t, tr.Snapshot()["gemini"].LastErrorMessage, maxErrorMessageLen)
}

func TestProperty_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health_metrics.json")

	tr1, err := New(path, 5, nil)
	require.NoError(t, err)
	require.NoError(t, tr1.RecordSuccess("gemini", 50))
	require.NoError(t, tr1.RecordFailure("claude", "oops"))

	tr2, err := New(path, 5, nil)
	require.NoError(t, err)

	assert.Equal(t, tr1.Snapshot(), tr2.Snapshot())
}

func TestProperty_CorruptFileYieldsEmptyTracker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health_metrics.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	tr, err := New(path, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, tr.Snapshot())
}

func TestMetrics_UnknownKeysSurviveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health_metrics.json")

	raw := `{"gemini":{"success_count":3,"failure_count":1,"updated_at":"2026-01-01T00:00:00Z","future_field":"kept","future_score":2.5}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	tr, err := New(path, 5, nil)
	require.NoError(t, err)

	m := tr.Snapshot()["gemini"]
	assert.Equal(t, int64(3), m.SuccessCount)
	assert.Equal(t, "kept", m.Extra["future_field"])
	assert.Equal(t, 2.5, m.Extra["future_score"])

	require.NoError(t, tr.RecordSuccess("gemini", 5))

	raw2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw2), `"future_field": "kept"`)
	assert.Contains(t, string(raw2), `"future_score": 2.5`)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(filepath.Join(dir, "health_metrics.json"), 5, nil)
	require.NoError(t, err)
	require.NoError(t, tr.RecordSuccess("gemini", 10))

	snap := tr.Snapshot()
	m := snap["gemini"]
	m.SuccessCount = 9999

	assert.Equal(t, int64(1), tr.Snapshot()["gemini"].SuccessCount)
	_ = orchestrator.ProviderID("gemini")
}
