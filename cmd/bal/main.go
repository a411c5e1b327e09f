// Command bal is the CLI for the L4 load balancer core: it starts the
// daemon, talks to a running one over the control socket, and validates
// config files offline. Structured the way the teacher structures
// cmd/corona: a persistent --config flag on the root command, one
// *cobra.Command constructor per subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bal",
		Short: "bal is an embeddable L4 TCP load balancer",
		Long:  "bal balances TCP connections across a backend pool with health checking, connect-time failover, and a protection mode that dampens retry storms.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfigPath(), "path to the YAML config file")

	rootCmd.AddCommand(
		checkCmd(),
		doctorCmd(),
		statusCmd(),
		startCmd(),
		stopCmd(),
		gracefulCmd(),
		reloadCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return "bal.yaml"
}
