package resilience

import "time"

// CircuitBreaker trips after consecutive failures against one platform and
// fails fast until OpenTimeout passes. Its state is shared across processes.
type CircuitBreaker struct {
	platform string
	config   CircuitBreakerConfig
	store    *Store
	now      func() time.Time
}

// NewCircuitBreaker returns a breaker for platform. Zero config values fall
// back to defaults.
func NewCircuitBreaker(store *Store, platform string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{platform: platform, config: config, store: store, now: time.Now}
}

// Allow reports whether a request may proceed. In half-open state it
// reserves a probe slot, released by RecordSuccess or RecordFailure.
// Store errors allow the request.
func (cb *CircuitBreaker) Allow() (bool, error) {
	state, err := cb.store.Load()
	if err != nil {
		return true, nil //nolint:nilerr // fail open
	}
	if state.Platform(cb.platform).CircuitBreaker.IsClosed() {
		return true, nil
	}

	now := cb.now()
	var allowed bool
	err = cb.store.Update(func(s *State) error {
		c := &s.Platform(cb.platform).CircuitBreaker
		switch {
		case c.IsClosed():
			allowed = true
			return nil
		case c.IsOpen():
			if now.Sub(c.OpenedAt) < cb.config.OpenTimeout {
				return nil
			}
			c.State = CircuitHalfOpen
			c.Successes = 0
			c.Failures = 0
			c.HalfOpenAttempts = 0
		}
		if cb.staleAttempts(c, now) {
			c.HalfOpenAttempts = 0
		}
		if cb.config.HalfOpenMaxRequests > 0 && c.HalfOpenAttempts >= cb.config.HalfOpenMaxRequests {
			return nil
		}
		c.HalfOpenAttempts++
		c.HalfOpenLastAttemptAt = now
		s.UpdatedAt = now
		allowed = true
		return nil
	})
	if err != nil {
		return true, nil //nolint:nilerr // fail open
	}
	return allowed, nil
}

// staleAttempts reports probe slots held by a process that died before
// reporting back. They are reclaimed after OpenTimeout.
func (cb *CircuitBreaker) staleAttempts(c *CircuitBreakerState, now time.Time) bool {
	if cb.config.HalfOpenMaxRequests <= 0 || c.HalfOpenAttempts < cb.config.HalfOpenMaxRequests {
		return false
	}
	if c.HalfOpenLastAttemptAt.IsZero() {
		return false
	}
	return now.Sub(c.HalfOpenLastAttemptAt) >= cb.config.OpenTimeout
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() error {
	return cb.store.Update(func(s *State) error {
		c := &s.Platform(cb.platform).CircuitBreaker
		switch {
		case c.IsHalfOpen():
			if c.HalfOpenAttempts > 0 {
				c.HalfOpenAttempts--
			}
			c.Successes++
			if c.Successes >= cb.config.SuccessThreshold {
				*c = CircuitBreakerState{State: CircuitClosed, LastFailureAt: c.LastFailureAt}
			}
		case c.IsClosed():
			c.Failures = 0
		}
		s.UpdatedAt = cb.now()
		return nil
	})
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() error {
	return cb.store.Update(func(s *State) error {
		c := &s.Platform(cb.platform).CircuitBreaker
		now := cb.now()
		c.LastFailureAt = now

		switch {
		case c.IsClosed():
			c.Failures++
			if c.Failures >= cb.config.FailureThreshold {
				c.State = CircuitOpen
				c.OpenedAt = now
			}
		case c.IsHalfOpen():
			c.State = CircuitOpen
			c.OpenedAt = now
			c.Successes = 0
			c.HalfOpenAttempts = 0
			c.HalfOpenLastAttemptAt = time.Time{}
		}
		s.UpdatedAt = now
		return nil
	})
}

// State returns the effective state. An open circuit past its timeout
// reports half_open.
func (cb *CircuitBreaker) State() (string, error) {
	state, err := cb.store.Load()
	if err != nil {
		return CircuitClosed, err
	}
	c := state.Platform(cb.platform).CircuitBreaker
	switch {
	case c.IsOpen() && cb.now().Sub(c.OpenedAt) >= cb.config.OpenTimeout:
		return CircuitHalfOpen, nil
	case c.State == "":
		return CircuitClosed, nil
	}
	return c.State, nil
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() error {
	return cb.store.Update(func(s *State) error {
		s.Platform(cb.platform).CircuitBreaker = CircuitBreakerState{State: CircuitClosed}
		s.UpdatedAt = cb.now()
		return nil
	})
}
