package backend

import (
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/callcenter/internal/config"
)

// BreakerState is exported as the circuit breaker gauge value, so the order
// is fixed.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

var breakerStateNames = [...]string{"closed", "half-open", "open"}

func (s BreakerState) String() string {
	if s < 0 || int(s) >= len(breakerStateNames) {
		return "unknown"
	}
	return breakerStateNames[s]
}

// ErrCircuitOpen is returned by Allow while the backend is considered down.
var ErrCircuitOpen = errors.New("backend: circuit breaker is open")

// CircuitBreaker stops calls to a backend that keeps failing. FailureThreshold
// consecutive failures open it; after Timeout it lets up to SuccessThreshold
// probes through and closes once that many succeed in a row. Any failed probe
// opens it again.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	now              func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	probes    int
	openedAt  time.Time
	onChange  func(BreakerState)
}

// NewCircuitBreaker applies defaults of 5 failures, 2 successes and 30s to
// zero fields of cfg.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		now:              time.Now,
	}
	if cb.failureThreshold < 1 {
		cb.failureThreshold = 5
	}
	if cb.successThreshold < 1 {
		cb.successThreshold = 2
	}
	if cb.timeout <= 0 {
		cb.timeout = 30 * time.Second
	}
	return cb
}

// OnStateChange registers fn for every transition. fn runs with the breaker
// locked and must not call back into it.
func (cb *CircuitBreaker) OnStateChange(fn func(BreakerState)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// Allow admits one call. The caller must report its outcome through done:
// healthy is false for transport failures and 5xx answers.
func (cb *CircuitBreaker) Allow() (done func(healthy bool), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.expire()
	switch cb.state {
	case BreakerOpen:
		return nil, ErrCircuitOpen
	case BreakerHalfOpen:
		if cb.probes >= cb.successThreshold {
			return nil, ErrCircuitOpen
		}
		cb.probes++
		return cb.finishProbe, nil
	}
	return cb.finish, nil
}

func (cb *CircuitBreaker) finish(healthy bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerClosed {
		return
	}
	if healthy {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.failureThreshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) finishProbe(healthy bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.probes > 0 {
		cb.probes--
	}
	if cb.state != BreakerHalfOpen {
		return
	}
	if !healthy {
		cb.trip()
		return
	}
	cb.successes++
	if cb.successes >= cb.successThreshold {
		cb.failures, cb.successes = 0, 0
		cb.set(BreakerClosed)
	}
}

// State returns the current state, moving an expired open breaker to
// half-open first.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.expire()
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.successes = 0
	cb.openedAt = cb.now()
	cb.set(BreakerOpen)
}

func (cb *CircuitBreaker) expire() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.successes, cb.probes = 0, 0
		cb.set(BreakerHalfOpen)
	}
}

func (cb *CircuitBreaker) set(s BreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	if cb.onChange != nil {
		cb.onChange(s)
	}
}
