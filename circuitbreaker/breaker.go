// Package circuitbreaker implements the per-provider three-state breaker
// of the orchestrator core: CLOSED, OPEN, HALF_OPEN. It gates entry into
// the retry engine without performing any I/O itself.
package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds the per-provider thresholds. Zero values are corrected to
// the package defaults by New.
type Config struct {
	// FailureThreshold is the number of consecutive CLOSED-state failures
	// that trips the breaker to OPEN.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive HALF_OPEN successes
	// required to return to CLOSED.
	SuccessThreshold int
	// Timeout is how long the breaker stays OPEN before allowing a
	// HALF_OPEN probe.
	Timeout time.Duration
	// OnStateChange, if set, is invoked synchronously on every transition.
	// Field order in the call matches the structured log: service is left
	// to the caller via a closure, since the breaker itself is provider-
	// agnostic.
	OnStateChange func(from, to State)
}

// DefaultConfig: failure_threshold=5, success_threshold=2, timeout=60s.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// Breaker is one provider's circuit breaker. All methods are O(1) and
// never perform I/O; Allow must answer in well under a millisecond.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
}

// New creates a breaker for the named provider. name is used only for
// structured logging.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed. It also performs the
// OPEN -> HALF_OPEN promotion when the cooldown window has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.transition(StateHalfOpen)
			b.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// OnSuccess records a successful call outcome.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	case StateOpen:
		// A success reported against an OPEN breaker means the caller
		// bypassed Allow(); ignore rather than corrupt state.
	}
}

// OnFailure records a failed call outcome.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.openedAt = time.Now()
		b.successCount = 0
		b.transition(StateOpen)
	case StateOpen:
		// Already open; nothing to update.
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current CLOSED-window failure count, for
// mirroring into health metrics; the mirror is derived, not
// authoritative.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset forces the breaker back to CLOSED. Used by tests and admin
// operations; never called from the ordinary failure/success path.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failureCount = 0
	b.successCount = 0
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	logFn := b.logger.Info
	if to == StateOpen {
		logFn = b.logger.Warn
	}
	logFn("circuit breaker state transition",
		zap.String("service", b.name),
		zap.String("old_state", from.String()),
		zap.String("new_state", to.String()),
		zap.Int("failure_count", b.failureCount),
	)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
