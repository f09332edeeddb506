// Package observability provides metrics collection and tracing for API
// calls, webhook deliveries and event dispatches.
package observability

import (
	"sync"
	"time"

	"github.com/basecamp/konnector/internal/api"
)

// SessionMetrics aggregates metrics for a process lifetime.
type SessionMetrics struct {
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	TotalRequests   int            `json:"total_requests"`
	FailedRequests  int            `json:"failed_requests"`
	TotalOperations int            `json:"total_operations"`
	FailedOps       int            `json:"failed_operations"`
	TotalRetries    int            `json:"total_retries"`
	TotalLatency    time.Duration  `json:"total_latency_ns"`
	Webhooks        int            `json:"webhooks"`
	RejectedHooks   int            `json:"rejected_webhooks"`
	Dispatches      int            `json:"dispatches"`
	FailedDispatch  int            `json:"failed_dispatches"`
	Platforms       map[string]int `json:"requests_by_platform,omitempty"`
}

// SessionCollector accumulates counters for the process lifetime. It is
// safe for concurrent use and keeps no per-request history.
type SessionCollector struct {
	mu sync.Mutex
	m  SessionMetrics
}

// NewSessionCollector creates a collector whose clock starts now.
func NewSessionCollector() *SessionCollector {
	c := &SessionCollector{}
	c.Reset()
	return c
}

func (c *SessionCollector) update(fn func(m *SessionMetrics)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.m)
}

// RecordRequest records one HTTP attempt against Clickup or Todoist.
func (c *SessionCollector) RecordRequest(info api.RequestInfo, result api.RequestResult) {
	c.update(func(m *SessionMetrics) {
		m.TotalRequests++
		m.TotalLatency += result.Duration
		if result.Error != nil {
			m.FailedRequests++
		}
		if info.Platform != "" {
			m.Platforms[info.Platform]++
		}
	})
}

// RecordOperation records one repository operation.
func (c *SessionCollector) RecordOperation(_ api.OperationInfo, err error) {
	c.update(func(m *SessionMetrics) {
		m.TotalOperations++
		if err != nil {
			m.FailedOps++
		}
	})
}

func (c *SessionCollector) RecordRetry() {
	c.update(func(m *SessionMetrics) { m.TotalRetries++ })
}

// RecordWebhook records an inbound delivery; unauthenticated ones count as
// rejected.
func (c *SessionCollector) RecordWebhook(authenticated bool) {
	c.update(func(m *SessionMetrics) {
		m.Webhooks++
		if !authenticated {
			m.RejectedHooks++
		}
	})
}

// RecordDispatch records one event handed to the bus.
func (c *SessionCollector) RecordDispatch(err error) {
	c.update(func(m *SessionMetrics) {
		m.Dispatches++
		if err != nil {
			m.FailedDispatch++
		}
	})
}

// Summary returns a snapshot. EndTime is the time of the call.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.m
	out.EndTime = time.Now()
	out.Platforms = make(map[string]int, len(c.m.Platforms))
	for k, v := range c.m.Platforms {
		out.Platforms[k] = v
	}
	return out
}

// Reset zeroes every counter and restarts the clock.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = SessionMetrics{StartTime: time.Now(), Platforms: make(map[string]int)}
}
