package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basecamp/konnector/internal/output"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetry(3, 0)}, opts...)
	return NewClient(Config{Platform: "clickup", BaseURL: srv.URL, Token: "pk_1"}, opts...)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"", 0},
		{"30", 30},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
		{"invalid", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRetryAfter(tt.header), tt.header)
	}
}

func TestResponseUnmarshalData(t *testing.T) {
	resp := &Response{Data: []byte(`{"id": "abc", "name": "Test"}`)}
	var v struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, resp.UnmarshalData(&v))
	assert.Equal(t, "abc", v.ID)

	bad := &Response{Data: []byte(`{`)}
	assert.Error(t, bad.UnmarshalData(&v))
}

func TestBuildURL(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://api.clickup.com/api/v2/"})

	tests := []struct {
		path string
		want string
	}{
		{"/task/1", "https://api.clickup.com/api/v2/task/1"},
		{"task/1", "https://api.clickup.com/api/v2/task/1"},
		{"https://other.example/x", "https://other.example/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.buildURL(tt.path), tt.path)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		want   string
	}{
		{"bare token", "", "pk_1"},
		{"bearer", "Bearer", "Bearer pk_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				assert.Contains(t, r.Header.Get("User-Agent"), "konnector/")
				fmt.Fprint(w, `{}`)
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, Token: "pk_1", AuthScheme: tt.scheme})
			_, err := c.Get(t.Context(), "/x")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		wantCode  string
		wantMsg   string
		retryable bool
	}{
		{http.StatusUnauthorized, "", output.CodeAuth, "", false},
		{http.StatusForbidden, "", output.CodeForbidden, "", false},
		{http.StatusNotFound, "", output.CodeNotFound, "", false},
		{http.StatusTooManyRequests, "", output.CodeRateLimit, "", true},
		{http.StatusInternalServerError, "", output.CodeAPI, "", false},
		{http.StatusBadGateway, "", output.CodeAPI, "", true},
		{http.StatusBadRequest, `{"err": "Task name invalid", "ECODE": "INPUT_005"}`, output.CodeAPI, "Task name invalid", false},
		{http.StatusBadRequest, `{"error": "Invalid argument value"}`, output.CodeAPI, "Invalid argument value", false},
		{http.StatusBadRequest, `plain text failure`, output.CodeAPI, "plain text failure", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.status, tt.body), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, WithRetry(1, 0))

			_, err := c.Get(t.Context(), "/task/1")
			require.Error(t, err)
			e := output.AsError(err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.retryable, e.Retryable)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, e.Message)
			}
		})
	}
}

func TestRetriesRetryableErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok": true}`)
	})

	resp, err := c.Get(t.Context(), "/task/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(resp.Data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesGiveUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Get(t.Context(), "/task/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, output.CodeRateLimit, output.AsError(err).Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(t.Context(), "/task/1")
	require.Error(t, err)
	assert.True(t, output.IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostSendsJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "1"}`)
	})

	resp, err := c.Post(t.Context(), "/list/9/task", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

type recordingHooks struct {
	NopHooks
	mu      sync.Mutex
	events  []string
	gateErr error
}

func (h *recordingHooks) add(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, s)
}

func (h *recordingHooks) OnOperationGate(ctx context.Context, op OperationInfo) (context.Context, error) {
	h.add("gate " + op.Platform + " " + op.Operation)
	return ctx, h.gateErr
}

func (h *recordingHooks) OnOperationStart(ctx context.Context, op OperationInfo) context.Context {
	h.add("start " + op.Operation)
	return ctx
}

func (h *recordingHooks) OnOperationEnd(_ context.Context, op OperationInfo, err error, _ time.Duration) {
	h.add(fmt.Sprintf("end %s err=%v", op.Operation, err != nil))
}

func (h *recordingHooks) OnRequestEnd(_ context.Context, info RequestInfo, res RequestResult) {
	h.add(fmt.Sprintf("request %s %d", info.Method, res.StatusCode))
}

func (h *recordingHooks) OnRetry(_ context.Context, _ RequestInfo, attempt int, _ error) {
	h.add(fmt.Sprintf("retry %d", attempt))
}

func TestOperationRunsHooks(t *testing.T) {
	var calls atomic.Int32
	hooks := &recordingHooks{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{}`)
	}, WithHooks(hooks))

	err := c.Operation(t.Context(), OperationInfo{Operation: "GetItemByID"}, func(ctx context.Context) error {
		_, err := c.Get(ctx, "/task/1")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"gate clickup GetItemByID",
		"start GetItemByID",
		"request GET 502",
		"retry 1",
		"request GET 200",
		"end GetItemByID err=false",
	}, hooks.events)
}

func TestOperationGateRejects(t *testing.T) {
	blocked := errors.New("circuit open")
	hooks := &recordingHooks{gateErr: blocked}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	}, WithHooks(hooks))

	ran := false
	err := c.Operation(t.Context(), OperationInfo{Operation: "CreateItem"}, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, blocked)
	assert.False(t, ran)
	assert.Equal(t, []string{"gate clickup CreateItem"}, hooks.events)
}

func TestChainHooksSkipsNil(t *testing.T) {
	h := &recordingHooks{}
	chained := ChainHooks(nil, h)
	_, err := chained.OnOperationGate(t.Context(), OperationInfo{Platform: "todoist", Operation: "GetItems"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gate todoist GetItems"}, h.events)
}

func TestContextCancellationStopsRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetry(5, time.Hour))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "/task/1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWaitsForRetryAfter(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok": true}`)
	})

	_, err := c.Get(t.Context(), "/task/1")
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), time.Second)
}

func TestCreateRetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		wantErr   bool
	}{
		{"gateway error is not retried", http.StatusBadGateway, 1, true},
		{"unavailable is not retried", http.StatusServiceUnavailable, 1, true},
		{"rate limit is retried", http.StatusTooManyRequests, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(tt.status)
					return
				}
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"id": "1"}`)
			})

			_, err := c.Create(t.Context(), "/tasks", map[string]any{"content": "x"})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestUpdatesStillRetryGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id": "1"}`)
	})

	_, err := c.Post(t.Context(), "/tasks/1", map[string]any{"content": "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
