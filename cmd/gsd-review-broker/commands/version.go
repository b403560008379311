package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gsdlabs/gsd-review-broker/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gsd-review-broker version %s", build.Version())
		if build.Commit != "" {
			fmt.Printf(" commit=%s", build.Commit)
		}
		fmt.Printf(" go=%s\n", runtime.Version())
	},
}
