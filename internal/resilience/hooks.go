package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/basecamp/konnector/internal/api"
	"github.com/basecamp/konnector/internal/output"
)

var _ api.GatingHooks = (*GatingHooks)(nil)

// Gate rejections.
var (
	ErrCircuitOpen = errors.New("circuit breaker open")
	ErrRateLimited = errors.New("client-side rate limit reached")
)

// defaultRetryAfter applies when a 429 carries no Retry-After header.
const defaultRetryAfter = 60 * time.Second

type gate struct {
	breaker *CircuitBreaker
	limiter *RateLimiter
}

// GatingHooks gates every repository operation through the breaker and
// limiter of the platform it targets. Platforms without a gate pass freely.
type GatingHooks struct {
	api.NopHooks
	gates map[string]gate
}

// NewGatingHooks builds gates for each platform using DefaultConfig.
func NewGatingHooks(store *Store, platforms ...string) *GatingHooks {
	cfgs := make(map[string]Config, len(platforms))
	for _, p := range platforms {
		cfgs[p] = DefaultConfig(p)
	}
	return NewGatingHooksFromConfig(store, cfgs)
}

// NewGatingHooksFromConfig builds one gate per configured platform.
func NewGatingHooksFromConfig(store *Store, cfgs map[string]Config) *GatingHooks {
	h := &GatingHooks{gates: make(map[string]gate, len(cfgs))}
	for p, cfg := range cfgs {
		h.gates[p] = gate{
			breaker: NewCircuitBreaker(store, p, cfg.CircuitBreaker),
			limiter: NewRateLimiter(store, p, cfg.RateLimiter),
		}
	}
	return h
}

// OnOperationGate checks the limiter before the breaker: the breaker
// reserves a half-open slot, which must not leak on a limiter rejection.
func (h *GatingHooks) OnOperationGate(ctx context.Context, op api.OperationInfo) (context.Context, error) {
	g, ok := h.gates[op.Platform]
	if !ok {
		return ctx, nil
	}
	if allowed, _ := g.limiter.Allow(); !allowed {
		wait, _ := g.limiter.RetryAfterRemaining()
		return ctx, &output.Error{
			Code:      output.CodeRateLimit,
			Message:   fmt.Sprintf("%s: %s", op.Platform, ErrRateLimited),
			Hint:      rateLimitHint(wait),
			Retryable: true,
			Cause:     ErrRateLimited,
		}
	}
	if allowed, _ := g.breaker.Allow(); !allowed {
		return ctx, &output.Error{
			Code:      output.CodeNetwork,
			Message:   fmt.Sprintf("%s: %s", op.Platform, ErrCircuitOpen),
			Hint:      "Recent calls kept failing; retry shortly",
			Retryable: true,
			Cause:     ErrCircuitOpen,
		}
	}
	return ctx, nil
}

func rateLimitHint(wait time.Duration) string {
	if wait > 0 {
		return fmt.Sprintf("Try again in %s", wait.Round(time.Second))
	}
	return "Try again later"
}

// OnOperationEnd feeds the outcome to the breaker.
func (h *GatingHooks) OnOperationEnd(_ context.Context, op api.OperationInfo, err error, _ time.Duration) {
	g, ok := h.gates[op.Platform]
	if !ok {
		return
	}
	switch {
	case err == nil:
		_ = g.breaker.RecordSuccess()
	case isCircuitBreakerError(err):
		_ = g.breaker.RecordFailure()
	}
}

// OnRequestEnd honours Retry-After from 429 and 503 responses.
func (h *GatingHooks) OnRequestEnd(_ context.Context, info api.RequestInfo, result api.RequestResult) {
	g, ok := h.gates[info.Platform]
	if !ok {
		return
	}
	switch {
	case result.RetryAfter > 0:
		_ = g.limiter.SetRetryAfterDuration(time.Duration(result.RetryAfter) * time.Second)
	case result.StatusCode == http.StatusTooManyRequests:
		_ = g.limiter.SetRetryAfterDuration(defaultRetryAfter)
	}
}

// isCircuitBreakerError reports failures that indicate the remote is
// unhealthy: network errors and 5xx responses.
func isCircuitBreakerError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *output.Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Code {
	case output.CodeNetwork:
		return true
	case output.CodeAPI:
		return e.HTTPStatus >= 500
	default:
		return false
	}
}
