// Package config provides layered configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default API endpoints.
const (
	DefaultClickupBaseURL = "https://api.clickup.com/api/v2"
	DefaultTodoistBaseURL = "https://api.todoist.com/rest/v2"
)

// Config holds the resolved configuration.
type Config struct {
	ListenAddr        string        `json:"listen_addr"`
	Timezone          string        `json:"timezone"`
	ReconcileInterval time.Duration `json:"reconcile_interval"`
	LinkBack          bool          `json:"link_back"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	CacheDir  string `json:"cache_dir"`

	Clickup ClickupConfig `json:"clickup"`
	Todoist TodoistConfig `json:"todoist"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// ClickupConfig holds the Clickup side of the bridge.
type ClickupConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"-"`
	WebhookSecret  string `json:"-"`
	InboxListID    string `json:"inbox_list_id"`
	TodoistIDField string `json:"todoist_id_field"`
	CompleteStatus string `json:"complete_status"`

	// ReconcileListIDs are swept periodically. Empty means the inbox list.
	ReconcileListIDs []string `json:"reconcile_list_ids,omitempty"`
}

// TodoistConfig holds the Todoist side of the bridge.
type TodoistConfig struct {
	BaseURL              string   `json:"base_url"`
	Token                string   `json:"-"`
	WebhookSecret        string   `json:"-"`
	InboxProjectIDs      []string `json:"inbox_project_ids"`
	NextActionsProjectID string   `json:"next_actions_project_id"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceFile    Source = "file"
	SourceDotenv  Source = "dotenv"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	ConfigFile string
	EnvFile    string
	CacheDir   string
	ListenAddr string
	LogLevel   string
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		ListenAddr:        ":8080",
		Timezone:          "UTC",
		ReconcileInterval: 15 * time.Minute,
		LinkBack:          true,
		LogLevel:          "info",
		LogFormat:         "text",
		CacheDir:          filepath.Join(cacheDir, "konnector"),
		Clickup: ClickupConfig{
			BaseURL:        DefaultClickupBaseURL,
			TodoistIDField: "todoist_id",
			CompleteStatus: "complete",
		},
		Todoist: TodoistConfig{
			BaseURL: DefaultTodoistBaseURL,
		},
		Sources: make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > .env > --config file > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)
	if overrides.ConfigFile != "" {
		if _, err := os.Stat(overrides.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		loadFromFile(cfg, overrides.ConfigFile, SourceFile)
	}

	dotenv, err := readDotenv(overrides.EnvFile)
	if err != nil {
		return nil, err
	}
	LoadFromEnv(cfg, dotenv)

	ApplyOverrides(cfg, overrides)
	return cfg, nil
}

// Paths returns the config files Load reads, in precedence order. Missing
// files are included so a watcher can pick them up once created.
func Paths(overrides FlagOverrides) []string {
	paths := []string{systemConfigPath(), globalConfigPath()}
	if overrides.ConfigFile != "" {
		paths = append(paths, overrides.ConfigFile)
	}
	return paths
}

// fileConfig mirrors the YAML layout. Pointers distinguish unset keys from
// zero values.
type fileConfig struct {
	ListenAddr        *string `yaml:"listen_addr"`
	Timezone          *string `yaml:"timezone"`
	ReconcileInterval *string `yaml:"reconcile_interval"`
	LinkBack          *bool   `yaml:"link_back"`
	LogLevel          *string `yaml:"log_level"`
	LogFormat         *string `yaml:"log_format"`
	CacheDir          *string `yaml:"cache_dir"`

	Clickup struct {
		BaseURL        *string `yaml:"base_url"`
		Token          *string `yaml:"token"`
		WebhookSecret  *string `yaml:"webhook_secret"`
		InboxListID    *string `yaml:"inbox_list_id"`
		TodoistIDField *string `yaml:"todoist_id_field"`
		CompleteStatus *string `yaml:"complete_status"`

		ReconcileListIDs []string `yaml:"reconcile_list_ids"`
	} `yaml:"clickup"`

	Todoist struct {
		BaseURL              *string  `yaml:"base_url"`
		Token                *string  `yaml:"token"`
		WebhookSecret        *string  `yaml:"webhook_secret"`
		InboxProjectIDs      []string `yaml:"inbox_project_ids"`
		NextActionsProjectID *string  `yaml:"next_actions_project_id"`
	} `yaml:"todoist"`
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	set := func(key string, dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
			cfg.Sources[key] = string(source)
		}
	}

	set("listen_addr", &cfg.ListenAddr, fc.ListenAddr)
	set("timezone", &cfg.Timezone, fc.Timezone)
	set("log_level", &cfg.LogLevel, fc.LogLevel)
	set("log_format", &cfg.LogFormat, fc.LogFormat)
	set("cache_dir", &cfg.CacheDir, fc.CacheDir)
	if fc.ReconcileInterval != nil {
		if d, err := time.ParseDuration(*fc.ReconcileInterval); err == nil {
			cfg.ReconcileInterval = d
			cfg.Sources["reconcile_interval"] = string(source)
		} else {
			fmt.Fprintf(os.Stderr, "warning: ignoring reconcile_interval %q in %s: %v\n", *fc.ReconcileInterval, path, err)
		}
	}
	if fc.LinkBack != nil {
		cfg.LinkBack = *fc.LinkBack
		cfg.Sources["link_back"] = string(source)
	}

	set("clickup.base_url", &cfg.Clickup.BaseURL, fc.Clickup.BaseURL)
	set("clickup.token", &cfg.Clickup.Token, fc.Clickup.Token)
	set("clickup.webhook_secret", &cfg.Clickup.WebhookSecret, fc.Clickup.WebhookSecret)
	set("clickup.inbox_list_id", &cfg.Clickup.InboxListID, fc.Clickup.InboxListID)
	set("clickup.todoist_id_field", &cfg.Clickup.TodoistIDField, fc.Clickup.TodoistIDField)
	set("clickup.complete_status", &cfg.Clickup.CompleteStatus, fc.Clickup.CompleteStatus)
	if fc.Clickup.ReconcileListIDs != nil {
		cfg.Clickup.ReconcileListIDs = compact(fc.Clickup.ReconcileListIDs)
		cfg.Sources["clickup.reconcile_list_ids"] = string(source)
	}

	set("todoist.base_url", &cfg.Todoist.BaseURL, fc.Todoist.BaseURL)
	set("todoist.token", &cfg.Todoist.Token, fc.Todoist.Token)
	set("todoist.webhook_secret", &cfg.Todoist.WebhookSecret, fc.Todoist.WebhookSecret)
	set("todoist.next_actions_project_id", &cfg.Todoist.NextActionsProjectID, fc.Todoist.NextActionsProjectID)
	if fc.Todoist.InboxProjectIDs != nil {
		cfg.Todoist.InboxProjectIDs = compact(fc.Todoist.InboxProjectIDs)
		cfg.Sources["todoist.inbox_project_ids"] = string(source)
	}
}

// readDotenv reads path, or ./.env when path is empty. A missing default
// file is not an error; a missing explicit one is.
func readDotenv(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("env file: %w", err)
	}
	return vals, nil
}

// envBinding maps a config key to the variables that may set it. The first
// name found wins.
type envBinding struct {
	key   string
	names []string
	apply func(cfg *Config, v string) bool
}

func str(dst func(*Config) *string) func(*Config, string) bool {
	return func(cfg *Config, v string) bool {
		*dst(cfg) = v
		return true
	}
}

var envBindings = []envBinding{
	{"listen_addr", []string{"KONNECTOR_LISTEN_ADDR"}, str(func(c *Config) *string { return &c.ListenAddr })},
	{"timezone", []string{"KONNECTOR_TIMEZONE"}, str(func(c *Config) *string { return &c.Timezone })},
	{"log_level", []string{"KONNECTOR_LOG_LEVEL"}, str(func(c *Config) *string { return &c.LogLevel })},
	{"log_format", []string{"KONNECTOR_LOG_FORMAT"}, str(func(c *Config) *string { return &c.LogFormat })},
	{"cache_dir", []string{"KONNECTOR_CACHE_DIR"}, str(func(c *Config) *string { return &c.CacheDir })},
	{"reconcile_interval", []string{"KONNECTOR_RECONCILE_INTERVAL"}, func(c *Config, v string) bool {
		d, err := time.ParseDuration(v)
		if err != nil {
			return false
		}
		c.ReconcileInterval = d
		return true
	}},
	{"link_back", []string{"KONNECTOR_LINK_BACK"}, func(c *Config, v string) bool {
		b, ok := parseEnvBool(v)
		if ok {
			c.LinkBack = b
		}
		return ok
	}},

	{"clickup.base_url", []string{"KONNECTOR_CLICKUP_BASE_URL"}, str(func(c *Config) *string { return &c.Clickup.BaseURL })},
	{"clickup.token", []string{"KONNECTOR_CLICKUP_TOKEN", "CLICKUP_TOKEN"}, str(func(c *Config) *string { return &c.Clickup.Token })},
	{"clickup.webhook_secret", []string{"KONNECTOR_CLICKUP_WEBHOOK_SECRET", "CLICKUP_WEBHOOK_SECRET"}, str(func(c *Config) *string { return &c.Clickup.WebhookSecret })},
	{"clickup.inbox_list_id", []string{"KONNECTOR_CLICKUP_INBOX_LIST_ID"}, str(func(c *Config) *string { return &c.Clickup.InboxListID })},
	{"clickup.todoist_id_field", []string{"KONNECTOR_CLICKUP_TODOIST_ID_FIELD"}, str(func(c *Config) *string { return &c.Clickup.TodoistIDField })},
	{"clickup.complete_status", []string{"KONNECTOR_CLICKUP_COMPLETE_STATUS"}, str(func(c *Config) *string { return &c.Clickup.CompleteStatus })},
	{"clickup.reconcile_list_ids", []string{"KONNECTOR_CLICKUP_RECONCILE_LIST_IDS"}, func(c *Config, v string) bool {
		c.Clickup.ReconcileListIDs = compact(strings.Split(v, ","))
		return true
	}},

	{"todoist.base_url", []string{"KONNECTOR_TODOIST_BASE_URL"}, str(func(c *Config) *string { return &c.Todoist.BaseURL })},
	{"todoist.token", []string{"KONNECTOR_TODOIST_TOKEN", "TODOIST_ACCESS"}, str(func(c *Config) *string { return &c.Todoist.Token })},
	{"todoist.webhook_secret", []string{"KONNECTOR_TODOIST_WEBHOOK_SECRET", "TODOIST_SECRET"}, str(func(c *Config) *string { return &c.Todoist.WebhookSecret })},
	{"todoist.next_actions_project_id", []string{"KONNECTOR_TODOIST_NEXT_ACTIONS_PROJECT_ID"}, str(func(c *Config) *string { return &c.Todoist.NextActionsProjectID })},
	{"todoist.inbox_project_ids", []string{"KONNECTOR_TODOIST_INBOX_PROJECT_IDS"}, func(c *Config, v string) bool {
		c.Todoist.InboxProjectIDs = compact(strings.Split(v, ","))
		return true
	}},
}

// LoadFromEnv applies environment variables, falling back to dotenv values
// for names the process environment does not set.
func LoadFromEnv(cfg *Config, dotenv map[string]string) {
	for _, b := range envBindings {
		for _, name := range b.names {
			v, source := os.Getenv(name), SourceEnv
			if v == "" {
				v, source = dotenv[name], SourceDotenv
			}
			if v == "" {
				continue
			}
			if b.apply(cfg, v) {
				cfg.Sources[b.key] = string(source)
			}
			break
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Returns (value, true) for recognized values, (false, false) for unrecognized.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
		cfg.Sources["cache_dir"] = string(SourceFlag)
	}
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
		cfg.Sources["listen_addr"] = string(SourceFlag)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
		cfg.Sources["log_level"] = string(SourceFlag)
	}
}

// Location resolves the configured timezone.
func (cfg *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	return loc, nil
}

// SweepLists returns the Clickup lists the reconcile sweep visits.
func (cfg *Config) SweepLists() []string {
	if len(cfg.Clickup.ReconcileListIDs) > 0 {
		return cfg.Clickup.ReconcileListIDs
	}
	if cfg.Clickup.InboxListID != "" {
		return []string{cfg.Clickup.InboxListID}
	}
	return nil
}

// Validate reports every setting `serve` needs that is missing or invalid.
func (cfg *Config) Validate() error {
	var errs []error
	missing := func(key, val string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	missing("clickup.token", cfg.Clickup.Token)
	missing("clickup.webhook_secret", cfg.Clickup.WebhookSecret)
	missing("clickup.inbox_list_id", cfg.Clickup.InboxListID)
	missing("clickup.todoist_id_field", cfg.Clickup.TodoistIDField)
	missing("todoist.token", cfg.Todoist.Token)
	missing("todoist.webhook_secret", cfg.Todoist.WebhookSecret)
	missing("todoist.next_actions_project_id", cfg.Todoist.NextActionsProjectID)
	if len(cfg.Todoist.InboxProjectIDs) == 0 {
		errs = append(errs, errors.New("todoist.inbox_project_ids is required"))
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReconcileInterval < 0 {
		errs = append(errs, errors.New("reconcile_interval must not be negative"))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", cfg.LogFormat))
	}
	return errors.Join(errs...)
}

// Path helpers

func systemConfigPath() string {
	return "/etc/konnector/config.yaml"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "konnector")
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
