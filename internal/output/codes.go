// Package output renders command results as JSON envelopes and maps the
// error taxonomy onto process exit codes.
package output

// Exit codes. Scripts wrapping konnector branch on these.
const (
	ExitOK         = 0
	ExitUsage      = 1
	ExitNotFound   = 2
	ExitAuth       = 3
	ExitForbidden  = 4
	ExitRateLimit  = 5
	ExitNetwork    = 6
	ExitAPI        = 7
	ExitValidation = 8
)

// Error codes carried in the envelope's "code" field.
const (
	CodeUsage      = "usage"         // bad arguments, flags or configuration
	CodeNotFound   = "not_found"     // task, list or project missing upstream
	CodeAuth       = "auth_required" // token missing or rejected
	CodeForbidden  = "forbidden"     // token lacks access
	CodeRateLimit  = "rate_limit"    // 429 from Clickup or Todoist
	CodeNetwork    = "network"       // transport failure
	CodeAPI        = "api_error"     // any other upstream failure
	CodeValidation = "validation"    // value rejected before a request
)

var exitCodes = map[string]int{
	CodeUsage:      ExitUsage,
	CodeNotFound:   ExitNotFound,
	CodeAuth:       ExitAuth,
	CodeForbidden:  ExitForbidden,
	CodeRateLimit:  ExitRateLimit,
	CodeNetwork:    ExitNetwork,
	CodeAPI:        ExitAPI,
	CodeValidation: ExitValidation,
}

// ExitCodeFor returns the exit code for an error code. Unknown codes exit as
// API failures.
func ExitCodeFor(code string) int {
	if exit, ok := exitCodes[code]; ok {
		return exit
	}
	return ExitAPI
}
