package observability

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/basecamp/konnector/internal/api"
)

var _ api.Hooks = (*Hooks)(nil)

// Verbosity levels understood by Hooks.
const (
	TraceOff        = 0
	TraceOperations = 1
	TraceRequests   = 2
)

// Hooks feeds every repository call into a SessionCollector and traces it
// when the verbosity level asks for it. Either half may be nil.
type Hooks struct {
	level     atomic.Int32
	collector *SessionCollector
	tracer    *Tracer
}

// NewHooks creates Hooks at the given verbosity level.
func NewHooks(level int, collector *SessionCollector, tracer *Tracer) *Hooks {
	h := &Hooks{collector: collector, tracer: tracer}
	h.SetLevel(level)
	return h
}

// SetLevel changes the verbosity level. Safe while requests are in flight.
func (h *Hooks) SetLevel(level int) { h.level.Store(int32(level)) }

// Level returns the current verbosity level.
func (h *Hooks) Level() int { return int(h.level.Load()) }

// traceAt returns the tracer when the current level reaches atLeast.
func (h *Hooks) traceAt(atLeast int) *Tracer {
	if h.tracer == nil || h.Level() < atLeast {
		return nil
	}
	return h.tracer
}

func (h *Hooks) OnOperationStart(ctx context.Context, op api.OperationInfo) context.Context {
	if t := h.traceAt(TraceOperations); t != nil {
		t.OperationStarted(op)
	}
	return ctx
}

func (h *Hooks) OnOperationEnd(_ context.Context, op api.OperationInfo, err error, took time.Duration) {
	if h.collector != nil {
		h.collector.RecordOperation(op, err)
	}
	if t := h.traceAt(TraceOperations); t != nil {
		t.OperationFinished(op, err, took)
	}
}

func (h *Hooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	if t := h.traceAt(TraceRequests); t != nil {
		t.Request(info)
	}
	return ctx
}

func (h *Hooks) OnRequestEnd(_ context.Context, info api.RequestInfo, result api.RequestResult) {
	if h.collector != nil {
		h.collector.RecordRequest(info, result)
	}
	if t := h.traceAt(TraceRequests); t != nil {
		t.Response(result)
	}
}

func (h *Hooks) OnRetry(_ context.Context, _ api.RequestInfo, attempt int, err error) {
	if h.collector != nil {
		h.collector.RecordRetry()
	}
	if t := h.traceAt(TraceRequests); t != nil {
		t.Retry(attempt, err)
	}
}
