package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basecamp/konnector/internal/config"
	"github.com/basecamp/konnector/internal/output"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect konnector configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > .env > --config > global > system > defaults

Config locations:
  - System: /etc/konnector/config.yaml
  - Global: ~/.config/konnector/config.yaml
  - File:   --config <path>
  - Dotenv: ./.env or --env-file <path>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}

	configData := configEntries(app.Config)
	summary := "Effective configuration"
	if err := app.Config.Validate(); err != nil {
		summary = fmt.Sprintf("Effective configuration (not ready to serve: %s)",
			strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	return app.OK(configData, output.WithSummary(summary))
}

// configEntries flattens cfg into key → {value, source}.
func configEntries(cfg *config.Config) map[string]any {
	keys := []struct {
		key    string
		value  string
		secret bool
	}{
		{"listen_addr", cfg.ListenAddr, false},
		{"timezone", cfg.Timezone, false},
		{"reconcile_interval", cfg.ReconcileInterval.String(), false},
		{"link_back", fmt.Sprintf("%t", cfg.LinkBack), false},
		{"log_level", cfg.LogLevel, false},
		{"log_format", cfg.LogFormat, false},
		{"cache_dir", cfg.CacheDir, false},
		{"clickup.base_url", cfg.Clickup.BaseURL, false},
		{"clickup.token", cfg.Clickup.Token, true},
		{"clickup.webhook_secret", cfg.Clickup.WebhookSecret, true},
		{"clickup.inbox_list_id", cfg.Clickup.InboxListID, false},
		{"clickup.todoist_id_field", cfg.Clickup.TodoistIDField, false},
		{"clickup.complete_status", cfg.Clickup.CompleteStatus, false},
		{"clickup.reconcile_list_ids", strings.Join(cfg.Clickup.ReconcileListIDs, ","), false},
		{"todoist.base_url", cfg.Todoist.BaseURL, false},
		{"todoist.token", cfg.Todoist.Token, true},
		{"todoist.webhook_secret", cfg.Todoist.WebhookSecret, true},
		{"todoist.inbox_project_ids", strings.Join(cfg.Todoist.InboxProjectIDs, ","), false},
		{"todoist.next_actions_project_id", cfg.Todoist.NextActionsProjectID, false},
	}

	data := make(map[string]any, len(keys))
	for _, k := range keys {
		if k.value == "" {
			continue
		}
		value := k.value
		if k.secret {
			value = redact(value)
		}
		source := cfg.Sources[k.key]
		if source == "" {
			source = string(config.SourceDefault)
		}
		data[k.key] = map[string]string{
			"value":  value,
			"source": source,
		}
	}
	return data
}

// redact keeps the last four characters of long secrets.
func redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file locations",
		Long:  "List the config files konnector reads, in load order. These are also the files watched by serve.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.OK(config.Paths(app.Flags.Overrides()),
				output.WithSummary("Config files in load order"))
		},
	}
}
