package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Conductor %s

HCL-configured CLI for an LLM conversation that delegates tasks to
background agents and collects their results into End Results.

Define models, profiles and the orchestrator block in HCL, then start a
session.

Get started:
  conductor verify <path>        Validate your configuration
  conductor run -c <path>        Start an orchestrated session
  conductor history sessions     List past sessions`, Version)
}
