package driver

import (
	"errors"
	"sync"
	"time"

	"github.com/smnsjas/go-netshell"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Session.Open when the breaker is open and has
// not yet reached its reset timeout.
var ErrCircuitOpen = errors.New("netshell: connection circuit breaker is open")

// CircuitBreakerPolicy configures a CircuitBreaker guarding Session.Open. It is
// never consulted for command execution: re-dialing a broken transport is safe
// to fail fast on, but re-sending a command a device may have already received
// is not (SPEC_FULL.md's no-hidden-retry invariant).
type CircuitBreakerPolicy struct {
	Enabled          bool
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultCircuitBreakerPolicy returns a disabled policy; callers opt in.
func DefaultCircuitBreakerPolicy() *CircuitBreakerPolicy {
	return &CircuitBreakerPolicy{
		Enabled:          false,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker wraps Session.Open so repeated failed dials to a dead device
// fail fast instead of each paying a full connect timeout.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	lastFailure time.Time

	threshold int
	timeout   time.Duration
	enabled   bool
	clock     netshell.Clock
}

// NewCircuitBreaker builds a CircuitBreaker from policy; a nil policy or a
// disabled one yields a breaker that always lets calls through.
func NewCircuitBreaker(policy *CircuitBreakerPolicy, clock netshell.Clock) *CircuitBreaker {
	if clock == nil {
		clock = netshell.RealClock{}
	}
	if policy == nil || !policy.Enabled {
		return &CircuitBreaker{enabled: false, clock: clock}
	}
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: policy.FailureThreshold,
		timeout:   policy.ResetTimeout,
		enabled:   true,
		clock:     clock,
	}
}

// Execute runs fn, fast-failing with ErrCircuitOpen when the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.enabled {
		return fn()
	}
	if err := cb.checkState(); err != nil {
		return err
	}
	err := fn()
	cb.updateState(err)
	return err
}

func (cb *CircuitBreaker) checkState() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.lastFailure) > cb.timeout {
			cb.state = StateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) updateState(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = StateClosed
		cb.failures = 0
		return
	}
	if errors.Is(err, ErrCircuitOpen) {
		return
	}

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		return
	}
	if cb.state == StateClosed && cb.failures >= cb.threshold {
		cb.state = StateOpen
	}
}

// State reports the breaker's current state, mainly for tests/diagnostics.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
