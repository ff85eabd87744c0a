// Package healing implements the circuit breaker used to protect the
// bus's broker connection and the MCP client's upstream server calls.
//
// Circuit Breaker states:
//   - CLOSED  (normal) → errors exceed threshold → OPEN
//   - OPEN    (blocking) → after timeout → HALF_OPEN
//   - HALF_OPEN (probing) → HalfOpenMax probes succeed → CLOSED, a probe fails → OPEN
package healing

import (
	"fmt"
	"sync"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Circuit Breaker
// ═══════════════════════════════════════════════════════════════════════════

// CBState represents the circuit breaker state.
type CBState int

const (
	CBClosed   CBState = iota // Normal operation — requests pass through
	CBOpen                    // Tripped — all requests rejected immediately
	CBHalfOpen                // Recovery probe — requests pass until it closes or reopens
)

// String returns a human-readable circuit breaker state.
func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "CLOSED"
	case CBOpen:
		return "OPEN"
	case CBHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // number of failures to trip (default 5)
	ResetTimeout     time.Duration // time in OPEN before trying HALF_OPEN (default 30s)
	HalfOpenMax      int           // successes in HALF_OPEN needed to close (default 3); HALF_OPEN does not cap requests
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      3,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	config      CircuitBreakerConfig
	state       CBState
	failures    int
	successes   int // successes in HALF_OPEN state
	lastFailure time.Time
	trippedAt   time.Time
	totalTrips  int
	now         func() time.Time // injectable clock for testing
}

// NewCircuitBreaker creates a circuit breaker with the given name and config.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: cfg,
		state:  CBClosed,
		now:    time.Now,
	}
}

// Allow checks whether a request should be permitted.
// Returns an error if the circuit is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBClosed:
		return nil
	case CBOpen:
		// Check if it's time to transition to half-open
		if cb.now().Sub(cb.trippedAt) >= cb.config.ResetTimeout {
			cb.state = CBHalfOpen
			cb.successes = 0
			return nil
		}
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	case CBHalfOpen:
		return nil
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			// Enough successful probes → close the circuit
			cb.state = CBClosed
			cb.failures = 0
			cb.successes = 0
		}
	case CBClosed:
		// Decay failures on success (simple reset)
		if cb.failures > 0 {
			cb.failures--
		}
	}
}

// RecordFailure records a failed request. May trip the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()

	switch cb.state {
	case CBClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CBOpen
			cb.trippedAt = cb.now()
			cb.totalTrips++
		}
	case CBHalfOpen:
		// Any failure in half-open → back to open
		cb.state = CBOpen
		cb.trippedAt = cb.now()
		cb.totalTrips++
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	// Auto-transition OPEN → HALF_OPEN if timeout has elapsed
	if cb.state == CBOpen && cb.now().Sub(cb.trippedAt) >= cb.config.ResetTimeout {
		cb.state = CBHalfOpen
		cb.successes = 0
	}
	return cb.state
}

// Snapshot returns a point-in-time view of the circuit breaker.
type Snapshot struct {
	Name       string    `json:"name"`
	State      CBState   `json:"state"`
	Failures   int       `json:"failures"`
	TotalTrips int       `json:"total_trips"`
	TrippedAt  time.Time `json:"tripped_at,omitempty"`
}

// Snapshot returns the current state snapshot.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	// Read state directly (not via cb.State()) to avoid mutex re-entrance.
	st := cb.state
	if st == CBOpen && cb.now().Sub(cb.trippedAt) >= cb.config.ResetTimeout {
		st = CBHalfOpen
		cb.state = CBHalfOpen
		cb.successes = 0
	}
	return Snapshot{
		Name:       cb.name,
		State:      st,
		Failures:   cb.failures,
		TotalTrips: cb.totalTrips,
		TrippedAt:  cb.trippedAt,
	}
}

// Reset forces the circuit breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CBClosed
	cb.failures = 0
	cb.successes = 0
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")
