package resilience

import "time"

// RateLimiter is a token bucket per platform, persisted so concurrent
// konnector processes share one budget.
type RateLimiter struct {
	platform string
	config   RateLimiterConfig
	store    *Store
	now      func() time.Time
}

// NewRateLimiter returns a limiter for platform. Zero config values fall
// back to defaults.
func NewRateLimiter(store *Store, platform string, config RateLimiterConfig) *RateLimiter {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 50
	}
	if config.RefillRate <= 0 {
		config.RefillRate = 10
	}
	if config.TokensPerRequest <= 0 {
		config.TokensPerRequest = 1
	}
	return &RateLimiter{platform: platform, config: config, store: store, now: time.Now}
}

func (rl *RateLimiter) refill(r *RateLimiterState, now time.Time) {
	if r.LastRefillAt.IsZero() {
		r.Tokens = rl.config.MaxTokens
		r.LastRefillAt = now
		return
	}
	r.Tokens = min(r.Tokens+now.Sub(r.LastRefillAt).Seconds()*rl.config.RefillRate, rl.config.MaxTokens)
	r.LastRefillAt = now
}

// Allow takes a token when one is available and no Retry-After block holds.
// Store errors allow the request.
func (rl *RateLimiter) Allow() (bool, error) {
	var allowed bool
	err := rl.store.Update(func(s *State) error {
		r := &s.Platform(rl.platform).RateLimiter
		now := rl.now()
		if r.BlockedFor(now) > 0 {
			return nil
		}
		rl.refill(r, now)
		if r.Tokens >= rl.config.TokensPerRequest {
			r.Tokens -= rl.config.TokensPerRequest
			allowed = true
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return true, nil //nolint:nilerr // fail open
	}
	return allowed, nil
}

// SetRetryAfter blocks the platform until the given time. An earlier time
// never shortens an existing block.
func (rl *RateLimiter) SetRetryAfter(until time.Time) error {
	return rl.store.Update(func(s *State) error {
		r := &s.Platform(rl.platform).RateLimiter
		if until.After(r.RetryAfterUntil) {
			r.RetryAfterUntil = until
			s.UpdatedAt = rl.now()
		}
		return nil
	})
}

// SetRetryAfterDuration blocks the platform for d.
func (rl *RateLimiter) SetRetryAfterDuration(d time.Duration) error {
	return rl.SetRetryAfter(rl.now().Add(d))
}

// Tokens returns the tokens available now.
func (rl *RateLimiter) Tokens() (float64, error) {
	var tokens float64
	err := rl.store.Update(func(s *State) error {
		r := &s.Platform(rl.platform).RateLimiter
		rl.refill(r, rl.now())
		tokens = r.Tokens
		return nil
	})
	return tokens, err
}

// RetryAfterRemaining returns how long the current Retry-After block holds.
func (rl *RateLimiter) RetryAfterRemaining() (time.Duration, error) {
	state, err := rl.store.Load()
	if err != nil {
		return 0, err
	}
	return state.Platform(rl.platform).RateLimiter.BlockedFor(rl.now()), nil
}

// Reset refills the bucket and clears any block.
func (rl *RateLimiter) Reset() error {
	return rl.store.Update(func(s *State) error {
		now := rl.now()
		s.Platform(rl.platform).RateLimiter = RateLimiterState{Tokens: rl.config.MaxTokens, LastRefillAt: now}
		s.UpdatedAt = now
		return nil
	})
}
