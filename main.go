// Meepo - tabletop session causal analysis
// Extracts weighted causal link graphs from session transcripts
package main

import (
	"fmt"
	"os"

	"github.com/keeminlee/meepo/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
