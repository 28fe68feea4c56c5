// Package circuitbreaker guards calls against a failing dependency. After a
// run of consecutive failures the breaker opens and rejects calls outright,
// then periodically lets a few probes through to test whether the dependency
// recovered. The transport layer keeps one breaker per streaming destination.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

type Config struct {
	// FailureThreshold is the run of consecutive failures that opens the
	// breaker. A single success resets the run.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// MaxRequestsHalfOpen caps concurrent probes while half-open.
	MaxRequestsHalfOpen int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 3,
	}
}

type CircuitBreaker struct {
	config Config

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	inFlight      int // half-open probes currently executing
	openedAt      time.Time
	onStateChange func(from, to State)
}

func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// OnStateChange registers a callback fired on every state transition. The
// callback runs outside the breaker's lock, after the transition took effect.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn if the breaker admits the call, and feeds the outcome back
// into the breaker's state. A rejected call never reaches fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transitionTo(StateClosed)
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.Timeout {
		if notify := cb.transitionTo(StateHalfOpen); notify != nil {
			defer notify()
		}
	}

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return fmt.Errorf("circuit breaker is %s, request rejected", StateOpen)
	case StateHalfOpen:
		if cb.inFlight >= cb.config.MaxRequestsHalfOpen {
			cb.mu.Unlock()
			return fmt.Errorf("circuit breaker is %s, request rejected", StateHalfOpen)
		}
		cb.inFlight++
	}

	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	var notify func()

	switch cb.state {
	case StateClosed:
		if err != nil {
			cb.failures++
			if cb.failures >= cb.config.FailureThreshold {
				notify = cb.transitionTo(StateOpen)
			}
		} else {
			cb.failures = 0
		}
	case StateHalfOpen:
		cb.inFlight--
		if err != nil {
			// One failed probe is enough evidence the dependency is
			// still down.
			notify = cb.transitionTo(StateOpen)
		} else {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				notify = cb.transitionTo(StateClosed)
			}
		}
	}

	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// transitionTo switches state and resets the counters. It returns the
// callback invocation to run once the lock is released, or nil. Callers hold
// cb.mu.
func (cb *CircuitBreaker) transitionTo(state State) func() {
	from := cb.state
	if from == state {
		return nil
	}

	cb.state = state
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	if state == StateOpen {
		cb.openedAt = time.Now()
	}

	if cb.onStateChange == nil {
		return nil
	}
	fn := cb.onStateChange
	return func() { fn(from, state) }
}
