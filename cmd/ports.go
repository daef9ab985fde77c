package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"serialbridge/pkg/serialport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printPorts(cmd.OutOrStdout(), serialport.ListPorts)
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}

	fmt.Fprintf(w, "Found %d serial port(s)\n", len(ports))
	for _, port := range ports {
		fmt.Fprintf(w, "  %s\n", port)
	}
	return nil
}
