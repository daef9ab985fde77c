package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "serialbridge",
	Short:         "Bridge a serial device to a cloud message session",
	Long:          "Reads newline-terminated lines from a serial device and forwards them to a cloud session; cloud commands are written back to the device.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBridge,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

func init() {
	addRunFlags(rootCmd)
}
