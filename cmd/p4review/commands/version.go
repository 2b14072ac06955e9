package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/p4review/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version, commit hash, and Go version of p4review.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.Summary("p4review"))
	},
}
