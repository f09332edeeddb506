package observability

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/basecamp/konnector/internal/api"
)

// redactedParams never reach trace output. Clickup and Todoist take their
// tokens in headers, but OAuth callbacks and pasted URLs still carry these.
var redactedParams = []string{"access_token", "token", "api_key", "client_secret", "code", "secret"}

// Tracer prints one line per traced event, stamped with the time since the
// tracer was created:
//
//	[0.041s] clickup.GetItemByID
//	[0.042s]   -> clickup GET https://api.clickup.com/api/v2/task/abc
//	[0.310s]   <- 200 (268ms)
//	[0.311s] clickup.GetItemByID ok (270ms)
type Tracer struct {
	mu    sync.Mutex
	out   io.Writer
	start time.Time
}

// NewTracer returns a tracer writing to out.
func NewTracer(out io.Writer) *Tracer {
	return &Tracer{out: out, start: time.Now()}
}

func (t *Tracer) line(indent bool, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := fmt.Sprintf("[%.3fs] ", time.Since(t.start).Seconds())
	if indent {
		prefix += "  "
	}
	fmt.Fprintf(t.out, prefix+format+"\n", args...)
}

// OperationStarted traces the start of a repository call.
func (t *Tracer) OperationStarted(op api.OperationInfo) {
	t.line(false, "%s.%s", op.Platform, op.Operation)
}

// OperationFinished traces the outcome of a repository call.
func (t *Tracer) OperationFinished(op api.OperationInfo, err error, took time.Duration) {
	if err != nil {
		t.line(false, "%s.%s failed: %v", op.Platform, op.Operation, err)
		return
	}
	t.line(false, "%s.%s ok (%dms)", op.Platform, op.Operation, took.Milliseconds())
}

// Request traces an outgoing HTTP request.
func (t *Tracer) Request(info api.RequestInfo) {
	t.line(true, "-> %s %s %s", info.Platform, info.Method, redactURL(info.URL))
}

// Response traces the answer to a request, or the transport error.
func (t *Tracer) Response(result api.RequestResult) {
	if result.Error != nil && result.StatusCode == 0 {
		t.line(true, "<- error: %v", result.Error)
		return
	}
	t.line(true, "<- %d (%dms)", result.StatusCode, result.Duration.Milliseconds())
}

// Retry traces a retried request.
func (t *Tracer) Retry(attempt int, err error) {
	t.line(true, "retry %d: %v", attempt, err)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	if u.RawQuery == "" {
		return raw
	}

	q := u.Query()
	hit := false
	for key := range q {
		for _, p := range redactedParams {
			if strings.EqualFold(key, p) {
				q.Set(key, "xxx")
				hit = true
			}
		}
	}
	if !hit {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}
