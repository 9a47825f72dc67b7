package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trajexplore/trajexplore/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the trajexplore build version and its dependencies",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("trajexplore", version.GetModuleVersion())
		info := version.GetBuildInfo()
		fmt.Println("go:", info.GoVersion)
		for _, dep := range info.Dependencies {
			if dep.Replace != "" {
				fmt.Printf("  %s %s => %s\n", dep.Path, dep.Version, dep.Replace)
				continue
			}
			fmt.Printf("  %s %s\n", dep.Path, dep.Version)
		}
	},
}
