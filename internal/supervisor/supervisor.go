// Package supervisor owns the accept loop, the health checker, and the
// protection controller; it starts them in dependency order and shuts them
// down in reverse, mirroring the teacher's cmd/corona daemon command
// (config/logging init, then wire components, then signal.Notify and block
// until a shutdown trigger). Component lifecycles are grouped under a
// single cancellable context with golang.org/x/sync/errgroup, the same
// fan-out-then-wait pattern the teacher uses for its own background tasks.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/bal/internal/config"
	"github.com/oriys/bal/internal/health"
	"github.com/oriys/bal/internal/lb"
	"github.com/oriys/bal/internal/pool"
	"github.com/oriys/bal/internal/protection"
	"github.com/oriys/bal/internal/proxy"
)

// BackendStatus is one row of StatusReport.PerBackend.
type BackendStatus struct {
	Endpoint         string
	Available        bool
	LastProbeOutcome string
}

// ProtectionStatus mirrors §6's protection_mode object.
type ProtectionStatus struct {
	On     bool
	Reason string
}

// StatusReport is the plain struct behind the `status` CLI contract of §6.
type StatusReport struct {
	Running           bool
	PID               int
	ListenEndpoint    string
	Method            string
	BackendTotal      int
	BackendReachable  int
	PerBackend        []BackendStatus
	ActiveConnections int64
	LastCheckTime     time.Time
	Protection        ProtectionStatus
}

// CheckLevel is the severity of a DoctorReport check.
type CheckLevel string

const (
	LevelOK       CheckLevel = "ok"
	LevelWarn     CheckLevel = "warn"
	LevelCritical CheckLevel = "critical"
)

// DoctorCheck is one entry of DoctorReport.Checks.
type DoctorCheck struct {
	Name    string
	Level   CheckLevel
	Summary string
	Hint    string
}

// DoctorReport is the plain struct behind the `doctor` CLI contract of §6.
type DoctorReport struct {
	Checks     []DoctorCheck
	Protection ProtectionStatus
}

// CheckReport is the plain struct behind the `check` CLI contract of §6.
type CheckReport struct {
	ConfigPath   string
	Errors       []string
	Warnings     []string
	BackendCount int
}

// Supervisor wires the pool, health checker, protection controller, and
// proxy server together and exposes the reload/shutdown/status surface of
// §6.
type Supervisor struct {
	mgr     *config.Manager
	pool    *pool.Pool
	checker *health.Checker
	prot    *protection.Controller
	sel     *lb.RoundRobin
	server  *proxy.Server
	logger  *slog.Logger

	startedAt time.Time
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// New builds a Supervisor from an already-validated initial snapshot.
func New(initial config.Snapshot, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := config.NewManager(initial)
	p := pool.New(initial.Backends)
	prot := protection.New(initial.Runtime.ProtectionWindow(), initial.Runtime.ProtectionTriggerThreshold, initial.Runtime.ProtectionStableSuccessThreshold)
	checker := health.NewChecker(p, mgr.Current, prot)
	sel := lb.NewRoundRobin()
	srv := proxy.New(p, sel, mgr.Current, prot, logger)

	return &Supervisor{
		mgr:     mgr,
		pool:    p,
		checker: checker,
		prot:    prot,
		sel:     sel,
		server:  srv,
		logger:  logger,
	}
}

// Run binds the listener and starts the health checker and accept loop
// under one cancellable context, in dependency order: health checker first
// (so the pool has a health view before traffic arrives), then the accept
// loop. It blocks until ctx is canceled or a component fails, then shuts
// down in reverse order.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.server.Listen(); err != nil {
		s.logger.Error("bind failed", "error", err)
		return err
	}

	s.startedAt = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	s.checker.Start(gctx)
	g.Go(func() error {
		return s.server.Serve(gctx)
	})

	err := g.Wait()
	s.checker.Stop()
	s.server.Close()

	if err != nil && gctx.Err() == nil {
		s.logger.Error("component failed", "error", err)
		return err
	}
	s.logger.Info("shutdown complete", "event", "shutdown")
	return nil
}

// Shutdown requests cooperative termination, per §7's ShutdownRequested:
// it cancels Run's context, which stops the accept loop and the health
// checker, then returns once Run's group has exited or the grace period
// elapses. Connections already being relayed are not tracked or waited
// for; grace bounds only the wait for the group.
func (s *Supervisor) Shutdown(grace time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		if s.group != nil {
			s.group.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("shutdown grace period elapsed, forcing close", "event", "shutdown_forced")
		s.server.Close()
	}
}

// Reload parses and validates the config at path and swaps it in if valid,
// per §6's reload(path) contract. Running tasks continue with the new
// snapshot at their next observation point; the pool is rebuilt to preserve
// health counters for unchanged endpoints (§4.2).
func (s *Supervisor) Reload(path string) error {
	next, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}
	if _, err := s.mgr.Swap(next); err != nil {
		return err
	}
	s.pool.Rebuild(next.Backends)
	s.prot.Reconfigure(next.Runtime.ProtectionWindow(), next.Runtime.ProtectionTriggerThreshold, next.Runtime.ProtectionStableSuccessThreshold)
	s.sel.Reset()
	s.logger.Info("config reloaded", "event", "reload", "generation", next.Generation)
	return nil
}

// Status builds the StatusReport of §6 from current pool and protection
// state.
func (s *Supervisor) Status() StatusReport {
	snap := s.mgr.Current()
	entries := s.pool.Snapshot()

	reachable := 0
	perBackend := make([]BackendStatus, 0, len(entries))
	var lastCheck time.Time
	for _, e := range entries {
		if e.Available {
			reachable++
		}
		if e.LastProbeAt.After(lastCheck) {
			lastCheck = e.LastProbeAt
		}
		perBackend = append(perBackend, BackendStatus{
			Endpoint:         e.Endpoint.String(),
			Available:        e.Available,
			LastProbeOutcome: e.LastProbeOutcome.String(),
		})
	}

	return StatusReport{
		Running:           true,
		PID:               os.Getpid(),
		ListenEndpoint:    snap.Listen.Addr(),
		Method:            string(snap.Method),
		BackendTotal:      len(entries),
		BackendReachable:  reachable,
		PerBackend:        perBackend,
		ActiveConnections: s.server.ActiveConnections(),
		LastCheckTime:     lastCheck,
		Protection: ProtectionStatus{
			On:     s.prot.On(),
			Reason: string(s.prot.ReasonCode()),
		},
	}
}

// Doctor runs the diagnostic checks of §6, derived from the same state
// Status reports but interpreted against health thresholds.
func (s *Supervisor) Doctor() DoctorReport {
	status := s.Status()
	var checks []DoctorCheck

	if status.BackendReachable == 0 {
		checks = append(checks, DoctorCheck{
			Name:    "backend_reachability",
			Level:   LevelCritical,
			Summary: fmt.Sprintf("0/%d backends reachable", status.BackendTotal),
			Hint:    "verify backend processes are running and reachable from this host",
		})
	} else if status.BackendReachable < status.BackendTotal {
		checks = append(checks, DoctorCheck{
			Name:    "backend_reachability",
			Level:   LevelWarn,
			Summary: fmt.Sprintf("%d/%d backends reachable", status.BackendReachable, status.BackendTotal),
			Hint:    "some backends are in cooldown or failing health checks",
		})
	} else {
		checks = append(checks, DoctorCheck{
			Name:    "backend_reachability",
			Level:   LevelOK,
			Summary: fmt.Sprintf("%d/%d backends reachable", status.BackendReachable, status.BackendTotal),
		})
	}

	if status.Protection.On {
		checks = append(checks, DoctorCheck{
			Name:    "protection_mode",
			Level:   LevelWarn,
			Summary: "protection mode is engaged: " + status.Protection.Reason,
			Hint:    "failover backoff and cooldown are currently doubled",
		})
	} else {
		checks = append(checks, DoctorCheck{
			Name:  "protection_mode",
			Level: LevelOK,
		})
	}

	return DoctorReport{
		Checks:     checks,
		Protection: status.Protection,
	}
}

// Check validates a config file without applying it, per §6's check(path)
// contract. It never mutates running state.
func Check(path string) CheckReport {
	report := CheckReport{ConfigPath: path}

	snap, err := config.LoadFromFile(path)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	report.BackendCount = len(snap.Backends)
	return report
}
