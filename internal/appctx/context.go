// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/basecamp/konnector/internal/api"
	"github.com/basecamp/konnector/internal/auth"
	"github.com/basecamp/konnector/internal/clickup"
	"github.com/basecamp/konnector/internal/config"
	"github.com/basecamp/konnector/internal/events"
	"github.com/basecamp/konnector/internal/handlers"
	"github.com/basecamp/konnector/internal/observability"
	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
	"github.com/basecamp/konnector/internal/reconcile"
	"github.com/basecamp/konnector/internal/resilience"
	"github.com/basecamp/konnector/internal/todoist"
	"github.com/basecamp/konnector/internal/webhook"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config   *config.Config
	Auth     *auth.Manager
	Output   *output.Writer
	Logger   *slog.Logger
	Location *time.Location

	// Remote platforms
	Clickup *clickup.Repository
	Todoist *todoist.Repository

	// Sync engine
	Settings *handlers.Settings
	Bus      *events.Bus
	Move     *handlers.MoveNewTodoistItemToClickup
	Sync     *handlers.SyncClickupItemToTodoist
	Sweeper  *reconcile.Sweeper

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.Hooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stdout   io.Writer
	stderr   io.Writer
	logLevel *slog.LevelVar
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	IDsOnly bool
	Count   bool
	JQ      string

	ConfigFile string
	EnvFile    string
	LogLevel   string

	// Behavior flags
	Verbose  int // 0=off, 1=operations, 2=operations+requests (stacks with -v -v or -vv)
	Stats    bool
	CacheDir string
}

// Overrides returns the flag values that take part in config loading.
func (f GlobalFlags) Overrides() config.FlagOverrides {
	return config.FlagOverrides{
		ConfigFile: f.ConfigFile,
		EnvFile:    f.EnvFile,
		CacheDir:   f.CacheDir,
		LogLevel:   f.LogLevel,
	}
}

// Option configures an App.
type Option func(*App)

// WithStdout redirects command output.
func WithStdout(w io.Writer) Option {
	return func(a *App) { a.stdout = w }
}

// WithStderr redirects logs, traces and stats.
func WithStderr(w io.Writer) Option {
	return func(a *App) { a.stderr = w }
}

// NewApp wires the repositories, handlers, bus and sweeper for cfg.
// Credentials may be missing; commands that call a platform check with
// RequireCredentials.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		Config:   cfg,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logLevel: new(slog.LevelVar),
	}
	for _, opt := range opts {
		opt(a)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, output.ErrUsage(err.Error())
	}
	a.Location = loc

	a.logLevel.Set(parseLevel(cfg.LogLevel))
	handlerOpts := &slog.HandlerOptions{Level: a.logLevel}
	if cfg.LogFormat == "json" {
		a.Logger = slog.New(slog.NewJSONHandler(a.stderr, handlerOpts))
	} else {
		a.Logger = slog.New(slog.NewTextHandler(a.stderr, handlerOpts))
	}

	// Collector always runs to gather stats; hooks control trace verbosity.
	// Level 0 initially; ApplyFlags sets the actual level from -v flags.
	a.Collector = observability.NewSessionCollector()
	a.Hooks = observability.NewHooks(observability.TraceOff, a.Collector, observability.NewTracer(a.stderr))
	gates := resilience.NewGatingHooks(
		resilience.NewStore(resilienceDir(cfg.CacheDir)),
		string(platform.Clickup), string(platform.Todoist),
	)

	cuClient := api.NewClient(api.Config{
		Platform: string(platform.Clickup),
		BaseURL:  config.NormalizeBaseURL(cfg.Clickup.BaseURL),
		Token:    cfg.Clickup.Token,
	}, api.WithHooks(gates, a.Hooks), api.WithLogger(a.Logger))
	tdClient := api.NewClient(api.Config{
		Platform:   string(platform.Todoist),
		BaseURL:    config.NormalizeBaseURL(cfg.Todoist.BaseURL),
		Token:      cfg.Todoist.Token,
		AuthScheme: "Bearer",
	}, api.WithHooks(gates, a.Hooks), api.WithLogger(a.Logger))

	a.Clickup = clickup.NewRepository(cuClient,
		clickup.NewMapper(loc, cfg.Clickup.TodoistIDField),
		cfg.Clickup.CompleteStatus, a.Logger)
	a.Todoist = todoist.NewRepository(tdClient,
		todoist.NewMapper(cfg.Todoist.NextActionsProjectID),
		a.Logger)

	a.Settings = handlers.NewSettings(listsFrom(cfg))
	a.Bus = events.NewBus(a.Logger, a.Collector)
	a.Move = handlers.NewMoveNewTodoistItemToClickup(a.Clickup, a.Todoist, a.Settings, loc, a.Logger)
	a.Sync = handlers.NewSyncClickupItemToTodoist(a.Clickup, a.Todoist, a.Settings, loc,
		handlers.WithLinkBack(cfg.LinkBack),
		handlers.WithLogger(a.Logger))
	handlers.Register(a.Bus, a.Move, a.Sync)

	a.Sweeper = reconcile.NewSweeper(a.Clickup, a.Bus, cfg.SweepLists(), cfg.ReconcileInterval, a.Logger)

	a.Output = output.New(output.Options{Format: output.FormatJSON, Writer: a.stdout})
	return a, nil
}

func resilienceDir(cacheDir string) string {
	if cacheDir == "" {
		return ""
	}
	return filepath.Join(cacheDir, resilience.DefaultDirName)
}

func listsFrom(cfg *config.Config) handlers.Lists {
	return handlers.Lists{
		TodoistInboxProjects: cfg.Todoist.InboxProjectIDs,
		TodoistNextActions:   cfg.Todoist.NextActionsProjectID,
		ClickupInbox:         cfg.Clickup.InboxListID,
	}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Reload applies the parts of a reloaded configuration that can change
// while serving: routed lists, the linked Todoist project, the sweep and
// the log level. Tokens, endpoints and the timezone need a restart.
func (a *App) Reload(cfg *config.Config) {
	lists := listsFrom(cfg)
	a.Settings.Update(lists)
	a.Todoist.Mapper().SetLinkedProjects(lists.TodoistNextActions)
	a.Sweeper.Configure(cfg.SweepLists(), cfg.ReconcileInterval)
	if a.Flags.Verbose == 0 {
		a.logLevel.Set(parseLevel(cfg.LogLevel))
	}
	a.Logger.Info("settings applied",
		"clickup_inbox", lists.ClickupInbox,
		"todoist_inbox", lists.TodoistInboxProjects,
		"todoist_next_actions", lists.TodoistNextActions)
}

// Webhooks builds the HTTP handler serving both webhook endpoints.
func (a *App) Webhooks() *webhook.Server {
	router := webhook.NewRouter(
		webhook.NewClickupController(webhook.ClickupAuthenticator{Secret: a.Config.Clickup.WebhookSecret}, a.Bus, a.Collector, a.Logger),
		webhook.NewTodoistController(webhook.TodoistAuthenticator{Secret: a.Config.Todoist.WebhookSecret}, a.Bus, a.Todoist.Mapper(), a.Collector, a.Logger),
		a.Collector,
	)
	return webhook.NewServer(a.Config.ListenAddr, router, a.Logger)
}

// RequireCredentials fails with an auth error naming the first platform
// without a token.
func (a *App) RequireCredentials(platforms ...platform.Platform) error {
	for _, p := range platforms {
		token := a.Config.Clickup.Token
		if p == platform.Todoist {
			token = a.Config.Todoist.Token
		}
		if token == "" {
			return &output.Error{
				Code:    output.CodeAuth,
				Message: fmt.Sprintf("no %s token configured", p),
				Hint:    fmt.Sprintf("Run: konnector auth set %s", p),
			}
		}
	}
	return nil
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	format := output.FormatJSON
	switch {
	case a.Flags.IDsOnly:
		format = output.FormatIDs
	case a.Flags.Count:
		format = output.FormatCount
	case a.Flags.Quiet:
		format = output.FormatQuiet
	}
	a.Output = output.New(output.Options{Format: format, Writer: a.stdout, JQ: a.Flags.JQ})

	// Determine verbosity level from flags and KONNECTOR_DEBUG env var
	verboseLevel := a.Flags.Verbose
	if debugEnv := os.Getenv("KONNECTOR_DEBUG"); debugEnv != "" {
		// KONNECTOR_DEBUG can be "1", "2", or "true" (treated as 2 for full debug)
		if level, err := strconv.Atoi(debugEnv); err == nil {
			verboseLevel = max(verboseLevel, level)
		} else if debugEnv == "true" {
			verboseLevel = 2
		}
	}
	a.Flags.Verbose = verboseLevel

	a.Hooks.SetLevel(verboseLevel)
	if verboseLevel > 0 {
		a.logLevel.Set(slog.LevelDebug)
	}
}

// OK outputs a success response, automatically including stats if --stats flag is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats flag is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		stats := a.Collector.Summary()
		a.printStatsToStderr(&stats)
	}
	return nil
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
func (a *App) isMachineOutput() bool {
	return a.Flags.Quiet || a.Flags.IDsOnly || a.Flags.Count || a.Flags.JQ != ""
}

// printStatsToStderr outputs a compact stats line to stderr.
func (a *App) printStatsToStderr(stats *observability.SessionMetrics) {
	if stats == nil {
		return
	}

	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	if stats.TotalRequests == 1 {
		parts = append(parts, "1 request")
	} else if stats.TotalRequests > 1 {
		parts = append(parts, fmt.Sprintf("%d requests", stats.TotalRequests))
	}

	if stats.TotalRetries == 1 {
		parts = append(parts, "1 retry")
	} else if stats.TotalRetries > 1 {
		parts = append(parts, fmt.Sprintf("%d retries", stats.TotalRetries))
	}

	if stats.Dispatches > 0 {
		parts = append(parts, fmt.Sprintf("%d dispatched", stats.Dispatches))
	}

	if stats.FailedOps > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedOps))
	}

	fmt.Fprintf(a.stderr, "\nStats: %s\n", strings.Join(parts, " | "))
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
