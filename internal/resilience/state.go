package resilience

import "time"

// StateVersion is the current state schema version.
const StateVersion = 2

// State is the resilience state shared by every konnector process using the
// same cache directory, keyed by platform.
type State struct {
	Version   int                       `json:"version"`
	Platforms map[string]*PlatformState `json:"platforms"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// PlatformState is the breaker and limiter state for one remote API.
type PlatformState struct {
	CircuitBreaker CircuitBreakerState `json:"circuit_breaker"`
	RateLimiter    RateLimiterState    `json:"rate_limiter"`
}

// Platform returns the state for name, creating it when missing.
func (s *State) Platform(name string) *PlatformState {
	if s.Platforms == nil {
		s.Platforms = make(map[string]*PlatformState)
	}
	p, ok := s.Platforms[name]
	if !ok {
		p = &PlatformState{CircuitBreaker: CircuitBreakerState{State: CircuitClosed}}
		s.Platforms[name] = p
	}
	return p
}

// CircuitBreakerState tracks one circuit.
//   - closed: requests flow
//   - open: requests fail fast until OpenTimeout passes
//   - half_open: a limited number of probes decide whether to close again
type CircuitBreakerState struct {
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`

	// HalfOpenAttempts counts probes in flight across processes.
	HalfOpenAttempts      int       `json:"half_open_attempts,omitempty"`
	HalfOpenLastAttemptAt time.Time `json:"half_open_last_attempt_at"`

	LastFailureAt time.Time `json:"last_failure_at"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Circuit states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

func (c *CircuitBreakerState) IsClosed() bool   { return c.State == "" || c.State == CircuitClosed }
func (c *CircuitBreakerState) IsOpen() bool     { return c.State == CircuitOpen }
func (c *CircuitBreakerState) IsHalfOpen() bool { return c.State == CircuitHalfOpen }

// RateLimiterState is a token bucket plus an optional Retry-After block.
type RateLimiterState struct {
	Tokens          float64   `json:"tokens"`
	LastRefillAt    time.Time `json:"last_refill_at"`
	RetryAfterUntil time.Time `json:"retry_after_until"`
}

// BlockedFor returns how long the Retry-After block still holds at now.
func (r *RateLimiterState) BlockedFor(now time.Time) time.Duration {
	if r.RetryAfterUntil.IsZero() || !now.Before(r.RetryAfterUntil) {
		return 0
	}
	return r.RetryAfterUntil.Sub(now)
}

// NewState returns an empty state. Buckets start full on first use.
func NewState() *State {
	return &State{
		Version:   StateVersion,
		Platforms: make(map[string]*PlatformState),
		UpdatedAt: time.Now(),
	}
}
