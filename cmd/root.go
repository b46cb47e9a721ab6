package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:           "meepo",
	Short:         "Meepo - tabletop session causal analysis",
	Long:          "Extracts a weighted causal link graph from tabletop session transcripts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the meepo command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meepo %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(runsCmd)
}
