package cli

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basecamp/konnector/internal/appctx"
	"github.com/basecamp/konnector/internal/auth"
	"github.com/basecamp/konnector/internal/commands"
	"github.com/basecamp/konnector/internal/config"
	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:   "konnector",
		Short: "Two-way sync bridge between Todoist and Clickup",
		Long: `konnector moves new Todoist inbox tasks into Clickup and mirrors
actionable Clickup tasks into a Todoist next actions project.

Run "konnector serve" to receive webhooks from both platforms.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup(cmd) {
				return nil
			}

			cfg, err := config.Load(flags.Overrides())
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			manager := auth.NewManager()
			if err := manager.Apply(cfg); err != nil {
				return err
			}

			app, err := appctx.NewApp(cfg,
				appctx.WithStdout(cmd.OutOrStdout()),
				appctx.WithStderr(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			app.Auth = manager
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON (default)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.IDsOnly, "ids-only", false, "Output only IDs")
	cmd.PersistentFlags().BoolVar(&flags.Count, "count", false, "Output only count")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter output with a jq expression")

	// Configuration flags
	cmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "Config file (YAML)")
	cmd.PersistentFlags().StringVar(&flags.EnvFile, "env-file", "", "Dotenv file (default ./.env)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for ops, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")
	cmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Cache directory")

	return cmd
}

// skipSetup reports whether cmd runs without loading configuration.
func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return cmd.HasParent() && cmd.Parent().Name() == "completion"
}

// NewCLI returns the root command with every subcommand attached.
func NewCLI() *cobra.Command {
	cmd := NewRootCmd()
	cmd.AddCommand(commands.All()...)
	return cmd
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := NewCLI()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	// Try to use app.Err() if app is available (for --stats support)
	if executedCmd != nil && executedCmd.Context() != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return apiErr.ExitCode()
		}
	}

	// Fallback: output error directly (app not available, e.g., during setup)
	pf := cmd.PersistentFlags()
	format := output.FormatJSON
	quiet, _ := pf.GetBool("quiet")
	idsOnly, _ := pf.GetBool("ids-only")
	count, _ := pf.GetBool("count")
	switch {
	case quiet:
		format = output.FormatQuiet
	case idsOnly:
		format = output.FormatIDs
	case count:
		format = output.FormatCount
	}

	writer := output.New(output.Options{
		Format: format,
		Writer: stdout,
	})
	_ = writer.Err(err)

	return apiErr.ExitCode()
}

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's argument and flag errors into usage
// errors so they exit with the usage code.
func transformCobraError(err error) error {
	msg := err.Error()

	// "flag needs an argument: --FLAG" → "--FLAG requires a value"
	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	// "unknown flag: --FLAG" → "Unknown option: --FLAG"
	if strings.HasPrefix(msg, "unknown flag: ") {
		flag := strings.TrimPrefix(msg, "unknown flag: ")
		return output.ErrUsage("Unknown option: " + flag)
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run: konnector --help")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	// "accepts 1 arg(s), received 0" → "ID required"
	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("ID required")
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage(msg)
	}

	return err
}
