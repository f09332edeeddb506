package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/itchyny/gojq"
)

// Response is the success envelope:
//
//	{"ok": true, "data": ..., "summary": "Swept 3 tasks in 1 lists (0 failed)"}
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatJSON  Format = iota
	FormatQuiet        // data only, no envelope
	FormatIDs
	FormatCount
)

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer
	// JQ is an optional jq expression applied to the value before printing.
	JQ string
}

// Writer prints command results to stdout in the format the global flags
// selected.
type Writer struct {
	opts Options
}

// New returns a Writer. A nil Options.Writer means stdout.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	return w.writeJSON(&ErrorResponse{
		OK:    false,
		Error: e.Message,
		Code:  e.Code,
		Hint:  e.Hint,
	})
}

func (w *Writer) write(resp *Response) error {
	switch w.opts.Format {
	case FormatQuiet:
		return w.emit(resp.Data)
	case FormatIDs:
		return w.writeIDs(resp.Data)
	case FormatCount:
		return w.writeCount(resp.Data)
	default:
		return w.emit(resp)
	}
}

// emit prints v as JSON, running it through the jq filter when one is set.
func (w *Writer) emit(v any) error {
	if w.opts.JQ == "" {
		return w.writeJSON(v)
	}
	results, err := Filter(w.opts.JQ, v)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(w.opts.Writer, s)
			continue
		}
		if err := w.writeJSON(r); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// rows flattens data into the records --ids-only and --count operate on: a
// list yields its elements, a single object yields itself.
func rows(data any) []any {
	switch d := normalizeData(data).(type) {
	case nil:
		return nil
	case []any:
		return d
	default:
		return []any{d}
	}
}

func (w *Writer) writeIDs(data any) error {
	for _, row := range rows(data) {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m["id"]; ok {
			if _, err := fmt.Fprintln(w.opts.Writer, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) writeCount(data any) error {
	_, err := fmt.Fprintln(w.opts.Writer, len(rows(data)))
	return err
}

// Filter evaluates a jq expression against v and collects every result.
// v is normalized to plain JSON values first, since gojq only understands
// maps, slices and scalars.
func Filter(expr string, v any) ([]any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("invalid jq expression: %s", expr), err.Error())
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("invalid jq expression: %s", expr), err.Error())
	}

	var results []any
	iter := code.Run(normalizeData(v))
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := r.(error); ok {
			if _, halt := err.(*gojq.HaltError); halt {
				break
			}
			return nil, ErrUsageHint("jq evaluation failed", err.Error())
		}
		results = append(results, r)
	}
	return results, nil
}

// normalizeData converts typed structs to plain JSON values via a round-trip.
func normalizeData(data any) any {
	if data == nil {
		return nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
		return data
	}
	b, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return data
	}
	return out
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
