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

func doctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks against the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := pidfile.Check()
			if err != nil {
				return err
			}
			if !status.Recorded || status.Stale {
				format := output.FormatTable
				if jsonOutput {
					format = output.FormatJSON
				}
				p := output.NewPrinter(format)
				p.PrintDoctor(output.DoctorView{
					Checks: []output.DoctorCheckView{{
						Name:    "daemon_running",
						Level:   "critical",
						Summary: "no running daemon (pid file missing or stale)",
						Hint:    "run `bal start` first",
					}},
				})
				os.Exit(1)
			}

			resp, err := controlsock.Call(controlsock.Request{Command: "doctor"}, 3*time.Second)
			if err != nil {
				return fmt.Errorf("talk to daemon: %w", err)
			}
			if !resp.OK {
				return fmt.Errorf("daemon error: %s", resp.Error)
			}

			var view output.DoctorView
			if err := json.Unmarshal(resp.Payload, &view); err != nil {
				return fmt.Errorf("decode daemon response: %w", err)
			}

			format := output.FormatTable
			if jsonOutput {
				format = output.FormatJSON
			}
			return output.NewPrinter(format).PrintDoctor(view)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON")
	return cmd
}
