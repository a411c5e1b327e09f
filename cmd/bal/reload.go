package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/bal/internal/controlsock"
	"github.com/oriys/bal/internal/pidfile"
)

func reloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload the running daemon's config from --config",
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
				Command: "reload",
				Path:    configFile,
			}, 3*time.Second)
			if err != nil {
				return fmt.Errorf("talk to daemon: %w", err)
			}
			if !resp.OK {
				return fmt.Errorf("reload rejected: %s", resp.Error)
			}
			fmt.Println("bal: config reloaded")
			return nil
		},
	}
	return cmd
}
