package output

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is the one error type commands return. Its Code picks the exit code
// and the envelope's "code" field; Hint is printed after the message.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	RetryAfter time.Duration // server-requested wait before retrying; zero if none
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + ": " + e.Hint
}

func (e *Error) Unwrap() error { return e.Cause }

// ExitCode returns the process exit code for e.
func (e *Error) ExitCode() int { return ExitCodeFor(e.Code) }

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

// ErrNotFound reports a missing task, list or project, e.g.
// ErrNotFound("todoist task", "123").
func ErrNotFound(resource, id string) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// ErrAuth reports a missing or rejected token for platform.
func ErrAuth(platform string) *Error {
	return &Error{
		Code:       CodeAuth,
		Message:    platform + " rejected the API token",
		Hint:       "Run: konnector auth set " + platform,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func ErrForbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg, HTTPStatus: http.StatusForbidden}
}

// ErrRateLimit reports a 429. retryAfter is in seconds; zero means unknown.
func ErrRateLimit(retryAfter int) *Error {
	e := &Error{
		Code:       CodeRateLimit,
		Message:    "Rate limited",
		Hint:       "Try again later",
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
	}
	if retryAfter > 0 {
		e.Hint = fmt.Sprintf("Try again in %d seconds", retryAfter)
		e.RetryAfter = time.Duration(retryAfter) * time.Second
	}
	return e
}

func ErrNetwork(cause error) *Error {
	return &Error{
		Code:      CodeNetwork,
		Message:   "Network error",
		Hint:      cause.Error(),
		Retryable: true,
		Cause:     cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{Code: CodeAPI, Message: msg, HTTPStatus: status}
}

// ErrValidation reports a value rejected while building or decoding a task.
func ErrValidation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// AsError returns the *Error in err's chain, or wraps err as an API error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeAPI, Message: err.Error(), Cause: err}
}

// HasCode reports whether err's chain holds an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func IsNotFound(err error) bool   { return HasCode(err, CodeNotFound) }
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }
