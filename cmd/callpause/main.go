// Package main provides the entry point for the callpause service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/callpause/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "callpause",
		Short: "Pause media playback during phone calls",
		Long: `callpause simulates a media device that pauses playback while a phone
call is ringing or in progress. Settings, permission, call state and the
host lifecycle are driven through an HTTP control API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
