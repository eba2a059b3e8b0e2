// Package cli implements the oddcert command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oddcert",
	Short: "Operational design domain certification engine",
	Long: "Runs the certification API, enforces operating envelopes on agent telemetry\n" +
		"and issues certificates once a CAT-72 conformance test passes.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
