package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basecamp/konnector/internal/version"
)

// NewVersionCmd creates the version command. It runs without loading
// configuration, so it prints plain text rather than an envelope.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return err
		},
	}
}
