package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionInfo carries the build identity stamped in at link time.
type VersionInfo struct {
	Version string
	Commit  string
}

// NewVersionCommand prints the build identity.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ember version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.Root().Version)
		},
	}
}
