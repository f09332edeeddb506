package resilience

import (
	"time"

	"github.com/basecamp/konnector/internal/platform"
)

// Config holds the breaker and limiter settings for one platform.
type Config struct {
	CircuitBreaker CircuitBreakerConfig
	RateLimiter    RateLimiterConfig
}

type CircuitBreakerConfig struct {
	FailureThreshold    int           // consecutive failures that open the circuit
	SuccessThreshold    int           // half-open successes that close it again
	OpenTimeout         time.Duration // time open before a probe is allowed
	HalfOpenMaxRequests int           // concurrent probes; zero means no cap
}

// RateLimiterConfig describes a token bucket. RefillRate is in tokens per
// second.
type RateLimiterConfig struct {
	MaxTokens        float64
	RefillRate       float64
	TokensPerRequest float64
}

// publishedLimits are the per-token request quotas each platform documents.
var publishedLimits = map[string]struct {
	requests int
	window   time.Duration
}{
	string(platform.Clickup): {100, time.Minute},
	string(platform.Todoist): {450, 15 * time.Minute},
}

// DefaultConfig returns settings for p. The bucket holds a full window's
// quota and refills at the published rate; unknown platforms get a generic
// 50 burst at 10/s.
func DefaultConfig(p string) Config {
	cfg := Config{
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenTimeout:         30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		RateLimiter: RateLimiterConfig{MaxTokens: 50, RefillRate: 10, TokensPerRequest: 1},
	}
	if l, ok := publishedLimits[p]; ok {
		cfg.RateLimiter.MaxTokens = float64(l.requests)
		cfg.RateLimiter.RefillRate = float64(l.requests) / l.window.Seconds()
	}
	return cfg
}
