package api

import (
	"context"
	"time"
)

// OperationInfo describes one repository call, which may span several
// HTTP requests (pagination, custom-field updates, retries).
type OperationInfo struct {
	Platform   string // "clickup" or "todoist"
	Operation  string // e.g. "GetItemByID", "CreateItem"
	ResourceID string
	IsMutation bool
}

// RequestInfo describes a single HTTP attempt.
type RequestInfo struct {
	Platform string
	Method   string
	URL      string
	Attempt  int
}

// RequestResult describes how an HTTP attempt ended.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	RetryAfter int // seconds, from the Retry-After header
	Retryable  bool
	Error      error
}

// Hooks observe operations and requests made through a Client.
type Hooks interface {
	OnOperationStart(ctx context.Context, op OperationInfo) context.Context
	OnOperationEnd(ctx context.Context, op OperationInfo, err error, duration time.Duration)
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRetry(ctx context.Context, info RequestInfo, attempt int, err error)
}

// GatingHooks can reject an operation before it starts.
type GatingHooks interface {
	Hooks
	OnOperationGate(ctx context.Context, op OperationInfo) (context.Context, error)
}

// NopHooks does nothing. Embed it to implement only some callbacks.
type NopHooks struct{}

func (NopHooks) OnOperationStart(ctx context.Context, _ OperationInfo) context.Context { return ctx }
func (NopHooks) OnOperationEnd(context.Context, OperationInfo, error, time.Duration)   {}
func (NopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context     { return ctx }
func (NopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)             {}
func (NopHooks) OnRetry(context.Context, RequestInfo, int, error)                     {}

// ChainHooks fans every callback out to hooks in order. Gates run in order
// and the first rejection wins.
func ChainHooks(hooks ...Hooks) GatingHooks {
	var live []Hooks
	for _, h := range hooks {
		if h != nil {
			live = append(live, h)
		}
	}
	return chain(live)
}

type chain []Hooks

func (c chain) OnOperationGate(ctx context.Context, op OperationInfo) (context.Context, error) {
	for _, h := range c {
		g, ok := h.(GatingHooks)
		if !ok {
			continue
		}
		var err error
		ctx, err = g.OnOperationGate(ctx, op)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

func (c chain) OnOperationStart(ctx context.Context, op OperationInfo) context.Context {
	for _, h := range c {
		ctx = h.OnOperationStart(ctx, op)
	}
	return ctx
}

func (c chain) OnOperationEnd(ctx context.Context, op OperationInfo, err error, d time.Duration) {
	for _, h := range c {
		h.OnOperationEnd(ctx, op, err, d)
	}
}

func (c chain) OnRequestStart(ctx context.Context, info RequestInfo) context.Context {
	for _, h := range c {
		ctx = h.OnRequestStart(ctx, info)
	}
	return ctx
}

func (c chain) OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult) {
	for _, h := range c {
		h.OnRequestEnd(ctx, info, result)
	}
}

func (c chain) OnRetry(ctx context.Context, info RequestInfo, attempt int, err error) {
	for _, h := range c {
		h.OnRetry(ctx, info, attempt, err)
	}
}
