package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display remotesql version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "remotesql v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "SQLite remote tables (module %s) built with Go\n", remotetable.DefaultModuleName)
		},
	}
}
