package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
)

// NewReconcileCmd creates the reconcile command.
func NewReconcileCmd() *cobra.Command {
	var lists []string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay Clickup tasks through the sync once",
		Long: `Sweep Clickup lists once, treating every task as updated.

Defaults to clickup.reconcile_list_ids, or the inbox list when unset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireCredentials(platform.Clickup, platform.Todoist); err != nil {
				return err
			}

			switch {
			case len(lists) > 0:
				app.Sweeper.Configure(lists, app.Config.ReconcileInterval)
			case len(app.Config.SweepLists()) == 0:
				return output.ErrUsageHint("no Clickup lists to sweep",
					"Set clickup.inbox_list_id or pass --list")
			}

			res, err := app.Sweeper.Sweep(cmd.Context())
			if err != nil && res.Items == 0 {
				return err
			}
			if err != nil {
				app.Logger.Warn("reconcile finished with failures", "error", err)
			}

			return app.OK(res,
				output.WithSummary(fmt.Sprintf("Swept %d tasks in %d lists (%d failed)", res.Items, res.Lists, res.Failed)))
		},
	}

	cmd.Flags().StringSliceVar(&lists, "list", nil, "Clickup list ID to sweep (repeatable)")

	return cmd
}

// NewSyncCmd creates the sync command group.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror tasks between platforms",
	}
	cmd.AddCommand(newSyncClickupCmd())
	return cmd
}

func newSyncClickupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clickup <task-id>",
		Short: "Mirror one Clickup task into Todoist",
		Long: `Re-read a Clickup task and create, update or delete its Todoist mirror,
exactly as a taskUpdated webhook would.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireCredentials(platform.Clickup, platform.Todoist); err != nil {
				return err
			}

			taskID := args[0]
			mirror, err := app.Sync.Sync(cmd.Context(), taskID)
			if err != nil {
				return err
			}

			result := map[string]any{"clickup_id": taskID, "todoist": mirror}
			if mirror == nil {
				return app.OK(result, output.WithSummary("No Todoist mirror for Clickup task "+taskID))
			}
			return app.OK(result,
				output.WithSummary(fmt.Sprintf("Clickup task %s mirrored as Todoist task %s", taskID, mirror.ID)))
		},
	}
}

// NewMoveCmd creates the move command group.
func NewMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move tasks between platforms",
	}
	cmd.AddCommand(newMoveTodoistCmd())
	return cmd
}

func newMoveTodoistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "todoist <task-id>",
		Short: "Move one Todoist inbox task into Clickup",
		Long: `Create a Clickup copy of a Todoist task in the Clickup inbox list and
delete the original. Tasks outside the Todoist inbox projects are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireCredentials(platform.Clickup, platform.Todoist); err != nil {
				return err
			}

			taskID := args[0]
			item, err := app.Todoist.GetItemByID(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			if item == nil {
				return output.ErrNotFound("todoist task", taskID)
			}

			created, err := app.Move.Move(cmd.Context(), *item)
			if err != nil {
				return err
			}

			result := map[string]any{"todoist_id": taskID, "clickup": created}
			if created == nil {
				return app.OK(result,
					output.WithSummary(fmt.Sprintf("Todoist task %s is not in an inbox project; left in place", taskID)))
			}
			return app.OK(result,
				output.WithSummary(fmt.Sprintf("Todoist task %s moved to Clickup task %s", taskID, created.ID)))
		},
	}
}

// NewItemsCmd creates the items command group.
func NewItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List tasks of a Clickup list or Todoist project",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clickup <list-id>",
			Short: "List the tasks of a Clickup list",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := appFrom(cmd)
				if err != nil {
					return err
				}
				if err := app.RequireCredentials(platform.Clickup); err != nil {
					return err
				}
				items, err := app.Clickup.GetItems(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return app.OK(items,
					output.WithSummary(fmt.Sprintf("%d tasks in Clickup list %s", len(items), args[0])))
			},
		},
		&cobra.Command{
			Use:   "todoist <project-id>",
			Short: "List the active tasks of a Todoist project",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := appFrom(cmd)
				if err != nil {
					return err
				}
				if err := app.RequireCredentials(platform.Todoist); err != nil {
					return err
				}
				items, err := app.Todoist.GetItems(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return app.OK(items,
					output.WithSummary(fmt.Sprintf("%d tasks in Todoist project %s", len(items), args[0])))
			},
		},
	)
	return cmd
}
