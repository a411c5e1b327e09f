// Package output renders supervisor reports (status/doctor/check) and
// backend tables to the CLI, supporting table/wide/json/yaml per §9's Open
// Question resolution on output precedence. Grounded on the teacher's
// internal/output.Printer: same Format enum, same tabwriter-based table
// rendering, same --json/--yaml passthrough via encoding/json and
// gopkg.in/yaml.v3.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format represents output format.
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "wide":
		return FormatWide
	default:
		return FormatTable
	}
}

// Printer handles formatted output.
type Printer struct {
	format  Format
	writer  io.Writer
	noColor bool
}

// NewPrinter creates a new printer.
func NewPrinter(format Format) *Printer {
	return &Printer{
		format:  format,
		writer:  os.Stdout,
		noColor: os.Getenv("NO_COLOR") != "",
	}
}

// SetWriter sets the output writer.
func (p *Printer) SetWriter(w io.Writer) {
	p.writer = w
}

// Print outputs data as YAML when the format is yaml, and as JSON for every
// other format (table and wide included).
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		return p.printJSON(data)
	case FormatYAML:
		return p.printYAML(data)
	default:
		return p.printJSON(data)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p *Printer) printYAML(data interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// Color codes.
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
)

// Colorize adds color to text.
func (p *Printer) Colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + Reset
}

// TableWriter creates a tabwriter for aligned output.
func (p *Printer) TableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
}

// BackendRow is one row of a backend table, used by `status`.
type BackendRow struct {
	Endpoint         string `json:"endpoint" yaml:"endpoint"`
	Available        bool   `json:"available" yaml:"available"`
	LastProbeOutcome string `json:"last_probe_outcome" yaml:"last_probe_outcome"`
}

// PrintBackends prints the per-backend table.
func (p *Printer) PrintBackends(rows []BackendRow) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No backends configured")
		return nil
	}

	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "ENDPOINT\tAVAILABLE\tLAST PROBE"))
	for _, row := range rows {
		avail := p.Colorize(Green, "yes")
		if !row.Available {
			avail = p.Colorize(Red, "no")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.Endpoint, avail, row.LastProbeOutcome)
	}
	return w.Flush()
}

// StatusView mirrors supervisor.StatusReport for rendering.
type StatusView struct {
	Running           bool         `json:"running" yaml:"running"`
	PID               int          `json:"pid" yaml:"pid"`
	ListenEndpoint    string       `json:"listen_endpoint" yaml:"listen_endpoint"`
	Method            string       `json:"method" yaml:"method"`
	BackendTotal      int          `json:"backend_total" yaml:"backend_total"`
	BackendReachable  int          `json:"backend_reachable" yaml:"backend_reachable"`
	PerBackend        []BackendRow `json:"per_backend" yaml:"per_backend"`
	ActiveConnections int64        `json:"active_connections" yaml:"active_connections"`
	LastCheckTime     string       `json:"last_check_time,omitempty" yaml:"last_check_time,omitempty"`
	ProtectionOn      bool         `json:"protection_on" yaml:"protection_on"`
	ProtectionReason  string       `json:"protection_reason,omitempty" yaml:"protection_reason,omitempty"`
}

// PrintStatus prints a StatusView.
func (p *Printer) PrintStatus(v StatusView) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(v)
	}

	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Running:"), boolLabel(p, v.Running))
	fmt.Fprintf(p.writer, "%s %d\n", p.Colorize(Bold, "PID:"), v.PID)
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Listen:"), v.ListenEndpoint)
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Method:"), v.Method)
	fmt.Fprintf(p.writer, "%s %d/%d\n", p.Colorize(Bold, "Backends reachable:"), v.BackendReachable, v.BackendTotal)
	fmt.Fprintf(p.writer, "%s %d\n", p.Colorize(Bold, "Active connections:"), v.ActiveConnections)
	if v.ProtectionOn {
		fmt.Fprintf(p.writer, "%s %s (%s)\n", p.Colorize(Bold, "Protection:"), p.Colorize(Yellow, "on"), v.ProtectionReason)
	} else {
		fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Protection:"), p.Colorize(Green, "off"))
	}
	fmt.Fprintln(p.writer)
	return p.PrintBackends(v.PerBackend)
}

func boolLabel(p *Printer, b bool) string {
	if b {
		return p.Colorize(Green, "true")
	}
	return p.Colorize(Red, "false")
}

// DoctorCheckView mirrors supervisor.DoctorCheck for rendering.
type DoctorCheckView struct {
	Name    string `json:"name" yaml:"name"`
	Level   string `json:"level" yaml:"level"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Hint    string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// DoctorView mirrors supervisor.DoctorReport for rendering.
type DoctorView struct {
	Checks           []DoctorCheckView `json:"checks" yaml:"checks"`
	ProtectionOn     bool              `json:"protection_on" yaml:"protection_on"`
	ProtectionReason string            `json:"protection_reason,omitempty" yaml:"protection_reason,omitempty"`
}

// PrintDoctor prints a DoctorView.
func (p *Printer) PrintDoctor(v DoctorView) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(v)
	}

	for _, c := range v.Checks {
		color := Green
		switch c.Level {
		case "warn":
			color = Yellow
		case "critical":
			color = Red
		}
		fmt.Fprintf(p.writer, "[%s] %s", p.Colorize(color, strings.ToUpper(c.Level)), c.Name)
		if c.Summary != "" {
			fmt.Fprintf(p.writer, ": %s", c.Summary)
		}
		fmt.Fprintln(p.writer)
		if c.Hint != "" {
			fmt.Fprintf(p.writer, "  %s %s\n", p.Colorize(Gray, "hint:"), c.Hint)
		}
	}
	return nil
}

// CheckView mirrors supervisor.CheckReport for rendering.
type CheckView struct {
	ConfigPath   string   `json:"config_path" yaml:"config_path"`
	Errors       []string `json:"errors" yaml:"errors"`
	Warnings     []string `json:"warnings" yaml:"warnings"`
	BackendCount int      `json:"backend_count" yaml:"backend_count"`
}

// PrintCheck prints a CheckView.
func (p *Printer) PrintCheck(v CheckView) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(v)
	}

	if len(v.Errors) == 0 {
		p.Success("%s is valid (%d backends)", v.ConfigPath, v.BackendCount)
	} else {
		p.Error("%s is invalid", v.ConfigPath)
		for _, e := range v.Errors {
			fmt.Fprintf(p.writer, "  - %s\n", e)
		}
	}
	for _, w := range v.Warnings {
		p.Warning("%s", w)
	}
	return nil
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Green, "✓ ")+msg)
}

// Error prints an error message.
func (p *Printer) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Red, "✗ ")+msg)
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Yellow, "⚠ ")+msg)
}

// Info prints an info message.
func (p *Printer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Blue, "ℹ ")+msg)
}
