// Package commands implements the CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basecamp/konnector/internal/appctx"
	"github.com/basecamp/konnector/internal/output"
)

// All returns every top-level command.
func All() []*cobra.Command {
	return []*cobra.Command{
		NewServeCmd(),
		NewReconcileCmd(),
		NewSyncCmd(),
		NewMoveCmd(),
		NewItemsCmd(),
		NewAuthCmd(),
		NewConfigCmd(),
		NewCommandsCmd(),
		NewVersionCmd(),
	}
}

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Bridge",
			Commands: []CommandInfo{
				{Name: "serve", Category: "bridge", Description: "Receive webhooks and sweep Clickup lists"},
				{Name: "reconcile", Category: "bridge", Description: "Replay Clickup tasks through the sync once"},
				{Name: "sync", Category: "bridge", Description: "Mirror one Clickup task into Todoist", Actions: []string{"clickup"}},
				{Name: "move", Category: "bridge", Description: "Move one Todoist inbox task into Clickup", Actions: []string{"todoist"}},
			},
		},
		{
			Name: "Inspection",
			Commands: []CommandInfo{
				{Name: "items", Category: "inspection", Description: "List tasks of a Clickup list or Todoist project", Actions: []string{"clickup", "todoist"}},
			},
		},
		{
			Name: "Auth & Config",
			Commands: []CommandInfo{
				{Name: "auth", Category: "auth", Description: "Store API tokens and webhook secrets", Actions: []string{"set", "remove", "status"}},
				{Name: "config", Category: "auth", Description: "Show effective configuration", Actions: []string{"show", "path"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "help", Category: "additional", Description: "Show help"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	var names []string
	for _, cat := range commandCategories() {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available konnector commands organized by category.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.OK(commandCategories(),
				output.WithSummary("All available konnector commands"))
		},
	}
}

func appFrom(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}
