package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/bal/internal/controlsock"
	"github.com/oriys/bal/internal/pidfile"
)

func stopCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := pidfile.Check()
			if err != nil {
				return err
			}
			if !status.Recorded || status.Stale {
				fmt.Fprintln(os.Stderr, "bal: not running")
				os.Exit(1)
			}

			resp, err := controlsock.Call(controlsock.Request{
				Command: "shutdown",
				GraceMS: int(grace.Milliseconds()),
			}, 3*time.Second)
			if err != nil {
				return fmt.Errorf("talk to daemon: %w", err)
			}
			if !resp.OK {
				return fmt.Errorf("daemon error: %s", resp.Error)
			}
			fmt.Println("bal: stop requested")
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "time to wait for the daemon's accept loop and health checker to stop")
	return cmd
}
