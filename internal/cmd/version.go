package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version information",
	Long:        `Print the version, git commit, and build date of brightspots.`,
	Annotations: map[string]string{skipSetupAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("brightspots version %s\n", Version)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		fmt.Printf("  Build date: %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
