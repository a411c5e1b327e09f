package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/oriys/bal/internal/config"
	"github.com/oriys/bal/internal/controlsock"
	"github.com/oriys/bal/internal/logging"
	"github.com/oriys/bal/internal/output"
	"github.com/oriys/bal/internal/pidfile"
	"github.com/oriys/bal/internal/supervisor"
)

func startCmd() *cobra.Command {
	var (
		foreground bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the load balancer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := config.LoadFromFile(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logging.InitStructured("json", snap.LogLevel)
			logger := logging.Op()
			logging.Default().SetConsole(foreground)

			if existing, err := pidfile.Check(); err == nil && existing.Recorded && !existing.Stale {
				return fmt.Errorf("bal already running (pid %d)", existing.PID)
			}

			sv := supervisor.New(snap, logger)

			if err := pidfile.Write(); err != nil {
				return fmt.Errorf("write pid file: %w", err)
			}
			defer pidfile.Remove()

			sock, err := controlsock.Listen(makeControlHandler(sv))
			if err != nil {
				return fmt.Errorf("listen on control socket: %w", err)
			}
			defer sock.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go sock.Serve(ctx)

			if watch {
				go watchConfig(ctx, configFile, sv, logger)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			go func() {
				for sig := range sigCh {
					switch sig {
					case syscall.SIGHUP:
						if err := sv.Reload(configFile); err != nil {
							logger.Error("reload failed", "error", err)
						}
					default:
						logger.Info("shutdown requested", "event", "shutdown_requested", "signal", sig.String())
						sv.Shutdown(10 * time.Second)
						cancel()
						return
					}
				}
			}()

			_ = foreground // foreground vs. background process management is delegated to the init system / container runtime
			return sv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", true, "run in the foreground (required under container runtimes)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload automatically when the config file changes")
	return cmd
}

// watchConfig debounces fsnotify write events by 200ms to coalesce
// editor saves that truncate-then-write, then calls the same Reload path
// the `reload` subcommand uses.
func watchConfig(ctx context.Context, path string, sv *supervisor.Supervisor, logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("config watch disabled", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		logger.Error("config watch disabled", "error", err)
		return
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, func() {
				if err := sv.Reload(path); err != nil {
					logger.Error("config reload failed", "error", err)
				} else {
					logger.Info("config reloaded from file watch", "event", "reload")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watch error", "error", err)
		}
	}
}

func makeControlHandler(sv *supervisor.Supervisor) controlsock.Handler {
	return func(ctx context.Context, req controlsock.Request) controlsock.Response {
		switch req.Command {
		case "status":
			return jsonResponse(statusView(sv.Status()))
		case "doctor":
			return jsonResponse(doctorView(sv.Doctor()))
		case "reload":
			if err := sv.Reload(req.Path); err != nil {
				return controlsock.Response{OK: false, Error: err.Error()}
			}
			return controlsock.Response{OK: true}
		case "shutdown":
			grace := time.Duration(req.GraceMS) * time.Millisecond
			if grace <= 0 {
				grace = 10 * time.Second
			}
			go sv.Shutdown(grace)
			return controlsock.Response{OK: true}
		default:
			return controlsock.Response{OK: false, Error: "unknown command: " + req.Command}
		}
	}
}

func jsonResponse(v any) controlsock.Response {
	payload, err := json.Marshal(v)
	if err != nil {
		return controlsock.Response{OK: false, Error: err.Error()}
	}
	return controlsock.Response{OK: true, Payload: payload}
}

func statusView(s supervisor.StatusReport) output.StatusView {
	rows := make([]output.BackendRow, 0, len(s.PerBackend))
	for _, b := range s.PerBackend {
		rows = append(rows, output.BackendRow{
			Endpoint:         b.Endpoint,
			Available:        b.Available,
			LastProbeOutcome: b.LastProbeOutcome,
		})
	}
	var lastCheck string
	if !s.LastCheckTime.IsZero() {
		lastCheck = s.LastCheckTime.UTC().Format(time.RFC3339)
	}
	return output.StatusView{
		Running:           s.Running,
		PID:               s.PID,
		ListenEndpoint:    s.ListenEndpoint,
		Method:            s.Method,
		BackendTotal:      s.BackendTotal,
		BackendReachable:  s.BackendReachable,
		PerBackend:        rows,
		ActiveConnections: s.ActiveConnections,
		LastCheckTime:     lastCheck,
		ProtectionOn:      s.Protection.On,
		ProtectionReason:  s.Protection.Reason,
	}
}

func doctorView(d supervisor.DoctorReport) output.DoctorView {
	checks := make([]output.DoctorCheckView, 0, len(d.Checks))
	for _, c := range d.Checks {
		checks = append(checks, output.DoctorCheckView{
			Name:    c.Name,
			Level:   string(c.Level),
			Summary: c.Summary,
			Hint:    c.Hint,
		})
	}
	return output.DoctorView{
		Checks:           checks,
		ProtectionOn:     d.Protection.On,
		ProtectionReason: d.Protection.Reason,
	}
}
