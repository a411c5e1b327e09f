package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/bal/internal/controlsock"
	"github.com/oriys/bal/internal/output"
	"github.com/oriys/bal/internal/pidfile"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidStatus, err := pidfile.Check()
			if err != nil {
				return err
			}
			if !pidStatus.Recorded || pidStatus.Stale {
				fmt.Fprintln(os.Stderr, "bal: not running")
				os.Exit(1)
			}

			resp, err := controlsock.Call(controlsock.Request{Command: "status"}, 3*time.Second)
			if err != nil {
				return fmt.Errorf("talk to daemon: %w", err)
			}
			if !resp.OK {
				return fmt.Errorf("daemon error: %s", resp.Error)
			}

			var view output.StatusView
			if err := json.Unmarshal(resp.Payload, &view); err != nil {
				return fmt.Errorf("decode daemon response: %w", err)
			}

			format := output.FormatTable
			if jsonOutput {
				format = output.FormatJSON
			}
			return output.NewPrinter(format).PrintStatus(view)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON")
	return cmd
}
