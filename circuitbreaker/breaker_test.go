package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestNew_ZeroValuesCorrected(t *testing.T) {
	b := New("p", Config{}, nil)
	require.NotNil(t, b)
	assert.Equal(t, StateClosed, b.State())
}

// Given thresholds (5, 2) and a timeout scaled down to 50ms, after
// exactly 5 consecutive failures from CLOSED the breaker is OPEN; before
// the timeout Allow() is false; after it the breaker becomes HALF_OPEN
// and Allow() is true; after 2 successes in HALF_OPEN it returns to
// CLOSED. A failure in HALF_OPEN is covered by TestHalfOpenFailureReopens.
func TestCircuitStateTransitions(t *testing.T) {
	b := New("svc", Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 50 * time.Millisecond}, zap.NewNop())

	for i := 0; i < 4; i++ {
		assert.True(t, b.Allow())
		b.OnFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	assert.True(t, b.Allow())
	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())

	assert.False(t, b.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.OnSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.OnSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("svc", Config{FailureThreshold: 2, SuccessThreshold: 2, Timeout: 20 * time.Millisecond}, zap.NewNop())
	b.OnFailure()
	b.OnFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.OnFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

// Per-service isolation: tripping one breaker leaves another's state
// untouched, since each Breaker owns independent state with no shared
// mutable data.
func TestPerServiceIsolation(t *testing.T) {
	a := New("a", DefaultConfig(), zap.NewNop())
	b := New("b", DefaultConfig(), zap.NewNop())

	for i := 0; i < 5; i++ {
		a.OnFailure()
	}
	assert.Equal(t, StateOpen, a.State())
	assert.Equal(t, StateClosed, b.State())
}

// Allow must be fast across many invocations.
func TestAllowIsFast(t *testing.T) {
	b := New("svc", DefaultConfig(), zap.NewNop())
	const n = 1_000_000
	start := time.Now()
	for i := 0; i < n; i++ {
		b.Allow()
	}
	elapsed := time.Since(start)
	assert.Less(t, elapsed, time.Second, "Allow() should be cheap across %d calls", n)
}

func TestReset(t *testing.T) {
	b := New("svc", Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, zap.NewNop())
	b.OnFailure()
	require.Equal(t, StateOpen, b.State())
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
