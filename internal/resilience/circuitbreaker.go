// Package resilience provides the circuit breaker guarding calls that may
// fail repeatedly, such as the pitch detector on the audio thread.
//
// [CircuitBreaker] is a classic three-state breaker (closed → open →
// half-open). Calls go through [CircuitBreaker.Execute], or through
// [CircuitBreaker.Allow] and [CircuitBreaker.Record] when the caller wants to
// avoid a closure. The breaker never blocks and never logs on the calling
// goroutine: transitions are reported through
// [CircuitBreakerConfig.OnStateChange] and can be observed from any goroutine
// with [CircuitBreaker.State] and [CircuitBreaker.Trips].
package resilience

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int32

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in state change notifications.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probe calls in the half-open
	// state required to close the breaker. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called on the executing goroutine after every
	// transition. It must not block.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
//
// Execute, Allow and Record must be called from a single goroutine (the
// owner). State, Trips and Reset are safe from any goroutine.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	state       atomic.Int32
	lastFailure atomic.Int64 // unix nanoseconds
	trips       atomic.Uint64
	resetReq    atomic.Bool

	// owner goroutine only
	consecutiveFail int
	halfOpenCalls   int
	halfOpenOK      int
	inFlightProbe   bool
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          cfg.Now,
	}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.Record(err)
	return err
}

// Allow reports whether a call may proceed. Every true result must be
// followed by exactly one [CircuitBreaker.Record].
func (cb *CircuitBreaker) Allow() bool {
	if cb.resetReq.CompareAndSwap(true, false) {
		cb.consecutiveFail = 0
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		cb.transition(StateClosed)
	}

	cb.inFlightProbe = false
	switch State(cb.state.Load()) {
	case StateOpen:
		if cb.now().UnixNano()-cb.lastFailure.Load() < int64(cb.resetTimeout) {
			return false
		}
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		cb.transition(StateHalfOpen)
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			return false
		}
	}

	if State(cb.state.Load()) == StateHalfOpen {
		cb.halfOpenCalls++
		cb.inFlightProbe = true
	}
	return true
}

// Record reports the outcome of a call admitted by [CircuitBreaker.Allow].
func (cb *CircuitBreaker) Record(err error) {
	if err != nil {
		cb.recordFailure()
		return
	}
	cb.recordSuccess()
}

func (cb *CircuitBreaker) recordFailure() {
	cb.lastFailure.Store(cb.now().UnixNano())

	if cb.inFlightProbe {
		// Any failure in half-open immediately re-opens.
		cb.consecutiveFail = cb.maxFailures
		cb.trips.Add(1)
		cb.transition(StateOpen)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures && State(cb.state.Load()) == StateClosed {
		cb.trips.Add(1)
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb.inFlightProbe {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMax {
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenOK = 0
			cb.transition(StateClosed)
		}
		return
	}
	cb.consecutiveFail = 0
}

func (cb *CircuitBreaker) transition(to State) {
	from := State(cb.state.Swap(int32(to)))
	if from != to && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next admitted call).
func (cb *CircuitBreaker) State() State {
	s := State(cb.state.Load())
	if s == StateOpen && cb.now().UnixNano()-cb.lastFailure.Load() >= int64(cb.resetTimeout) {
		return StateHalfOpen
	}
	return s
}

// Trips returns how many times the breaker has opened.
func (cb *CircuitBreaker) Trips() uint64 { return cb.trips.Load() }

// Reset forces the breaker back to [StateClosed]. The owner goroutine applies
// the request on its next call.
func (cb *CircuitBreaker) Reset() {
	cb.resetReq.Store(true)
}
