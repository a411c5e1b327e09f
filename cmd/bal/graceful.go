package main

import "github.com/spf13/cobra"

// gracefulCmd is an alias of stop, per spec.md §6 scenario 6: both send
// shutdown-graceful over the control socket with the same default grace
// period.
func gracefulCmd() *cobra.Command {
	cmd := stopCmd()
	cmd.Use = "graceful"
	cmd.Short = "Alias for `stop`: request a graceful shutdown"
	return cmd
}
