package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/basecamp/konnector/internal/config"
	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
	"github.com/basecamp/konnector/internal/version"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string
	var noReconcile, noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive Todoist and Clickup webhooks",
		Long: `Start the webhook server.

Endpoints:
  POST /clickup/webhook/call   Clickup taskCreated and taskUpdated deliveries
  POST /todoist/webhook/call   Todoist item:added deliveries
  GET  /healthz                liveness
  GET  /stats                  session counters

Clickup lists are also swept every reconcile_interval so changes missed by
webhooks are mirrored. Config file changes are picked up while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			overrides := app.Flags.Overrides()
			overrides.ListenAddr = listen
			config.ApplyOverrides(app.Config, overrides)

			if err := app.Config.Validate(); err != nil {
				return &output.Error{
					Code:    output.CodeUsage,
					Message: "configuration is incomplete: " + err.Error(),
					Hint:    "Run: konnector config show",
					Cause:   err,
				}
			}
			if err := app.RequireCredentials(platform.Clickup, platform.Todoist); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return app.Webhooks().Run(ctx)
			})
			if !noReconcile {
				g.Go(func() error {
					return app.Sweeper.Run(ctx)
				})
			}
			if !noWatch {
				g.Go(func() error {
					return config.Watch(ctx, config.Paths(overrides), func() (*config.Config, error) {
						cfg, err := config.Load(overrides)
						if err != nil {
							return nil, err
						}
						if err := app.Auth.Apply(cfg); err != nil {
							return nil, err
						}
						return cfg, cfg.Validate()
					}, app.Reload, app.Logger)
				})
			}

			app.Logger.Info("konnector serving",
				"version", version.Version,
				"addr", app.Config.ListenAddr,
				"reconcile", !noReconcile,
				"interval", app.Config.ReconcileInterval)

			if err := g.Wait(); err != nil {
				return err
			}
			app.Logger.Info("konnector stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default :8080)")
	cmd.Flags().BoolVar(&noReconcile, "no-reconcile", false, "Disable the periodic Clickup sweep")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload config files on change")

	return cmd
}
