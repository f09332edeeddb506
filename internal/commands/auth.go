package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basecamp/konnector/internal/auth"
	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API credentials",
		Long: `Store Clickup and Todoist API tokens and webhook secrets in the system
keyring, or in a 0600 file when no keyring is available
(KONNECTOR_NO_KEYRING=1 forces the file).

Tokens set in a config file, the environment or .env take precedence over
stored ones.`,
	}

	cmd.AddCommand(
		newAuthSetCmd(),
		newAuthRemoveCmd(),
		newAuthStatusCmd(),
	)

	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var token, secret string

	cmd := &cobra.Command{
		Use:   "set <clickup|todoist>",
		Short: "Store a platform token",
		Long: `Store the API token and optionally the webhook secret for a platform.
Without --token the token is read from the first line of stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			p, err := auth.ParsePlatform(args[0])
			if err != nil {
				return err
			}

			if token == "" {
				if token, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if err := app.Auth.Set(p, token, secret); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"platform": p,
				"status":   "stored",
				"keyring":  app.Auth.Store().UsingKeyring(),
			}, output.WithSummary(fmt.Sprintf("Stored %s credentials", p)))
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token (read from stdin when omitted)")
	cmd.Flags().StringVar(&secret, "webhook-secret", "", "Webhook signing secret")

	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading token: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", output.ErrUsageHint("no token given", "Pass --token or pipe the token on stdin")
	}
	return line, nil
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <clickup|todoist>",
		Aliases: []string{"rm"},
		Short:   "Remove stored platform credentials",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			p, err := auth.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			if err := app.Auth.Remove(p); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"platform": p,
				"status":   "removed",
			}, output.WithSummary(fmt.Sprintf("Removed %s credentials", p)))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which tokens are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			status := func(p platform.Platform, token, secret string) map[string]any {
				key := string(p)
				return map[string]any{
					"authenticated":  token != "",
					"token_source":   sourceOf(app.Config.Sources, key+".token", token),
					"webhook_secret": secret != "",
					"secret_source":  sourceOf(app.Config.Sources, key+".webhook_secret", secret),
				}
			}

			result := map[string]any{
				string(platform.Clickup): status(platform.Clickup, app.Config.Clickup.Token, app.Config.Clickup.WebhookSecret),
				string(platform.Todoist): status(platform.Todoist, app.Config.Todoist.Token, app.Config.Todoist.WebhookSecret),
				"keyring":                app.Auth.Store().UsingKeyring(),
			}

			summary := "Both platforms authenticated"
			if missing := app.RequireCredentials(platform.Clickup, platform.Todoist); missing != nil {
				summary = output.AsError(missing).Message
			}
			return app.OK(result, output.WithSummary(summary))
		},
	}
}

// sourceOf names where a value came from, or "" when it is unset.
func sourceOf(sources map[string]string, key, value string) string {
	if value == "" {
		return ""
	}
	if s := sources[key]; s != "" {
		return s
	}
	return "default"
}
