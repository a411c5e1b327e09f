package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/bal/internal/output"
	"github.com/oriys/bal/internal/supervisor"
)

func checkCmd() *cobra.Command {
	var (
		strict     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a config file without running the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) == 1 {
				path = args[0]
			}

			report := supervisor.Check(path)

			format := output.FormatTable
			if jsonOutput {
				format = output.FormatJSON
			}
			p := output.NewPrinter(format)
			p.PrintCheck(output.CheckView{
				ConfigPath:   report.ConfigPath,
				Errors:       report.Errors,
				Warnings:     report.Warnings,
				BackendCount: report.BackendCount,
			})

			if len(report.Errors) > 0 {
				os.Exit(1)
			}
			if strict && len(report.Warnings) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON")
	return cmd
}
