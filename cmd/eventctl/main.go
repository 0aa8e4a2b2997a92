// Command eventctl is the operator tool for the event logistics API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eventctl",
		Short:         "Inspect event logistics and follow live changes",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(devJWTCmd())
	return rootCmd
}
