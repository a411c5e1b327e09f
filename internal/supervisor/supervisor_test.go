package supervisor

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/oriys/bal/internal/balerr"
	"github.com/oriys/bal/internal/config"
)

func echoBackend(t *testing.T) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bal.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestSupervisorRunsAndReportsStatus(t *testing.T) {
	addr, stop := echoBackend(t)
	defer stop()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}

	snap := config.DefaultSnapshot()
	snap.Listen.Port = 0
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	snap.Backends = []config.Endpoint{{Host: host, Port: portNum}}
	snap.Runtime.HealthCheckIntervalMS = 20

	sv := New(snap, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- sv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)

	status := sv.Status()
	if !status.Running {
		t.Errorf("expected Running = true")
	}
	if status.BackendTotal != 1 {
		t.Errorf("BackendTotal = %d, want 1", status.BackendTotal)
	}

	sv.Shutdown(2 * time.Second)
	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after Shutdown")
	}
}

func TestCheckValidConfig(t *testing.T) {
	path := writeConfigFile(t, "port: 9090\nbackends:\n  - host: 127.0.0.1\n    port: 9100\n")
	report := Check(path)
	if len(report.Errors) != 0 {
		t.Errorf("unexpected errors: %v", report.Errors)
	}
	if report.BackendCount != 1 {
		t.Errorf("BackendCount = %d, want 1", report.BackendCount)
	}
}

func TestCheckInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, "port: 9090\nbackends: []\n")
	report := Check(path)
	if len(report.Errors) == 0 {
		t.Errorf("expected validation error for empty backends")
	}
}

func TestDoctorReportsCriticalWhenNoBackendsReachable(t *testing.T) {
	snap := config.DefaultSnapshot()
	snap.Listen.Port = 0
	snap.Backends = []config.Endpoint{{Host: "127.0.0.1", Port: 1}}
	sv := New(snap, nil)

	// Every pool entry starts available; drive the only backend past its
	// fail threshold so it no longer counts as reachable.
	for i := 0; i < snap.Runtime.HealthCheckFailThreshold; i++ {
		sv.pool.MarkFailure(0, time.Now(), balerr.ProbeRefused, uint32(snap.Runtime.HealthCheckFailThreshold), snap.Runtime.BackendCooldown(), false)
	}

	doctor := sv.Doctor()
	found := false
	for _, c := range doctor.Checks {
		if c.Name == "backend_reachability" {
			found = true
			if c.Level != LevelCritical {
				t.Errorf("level = %q, want critical (the only backend is past its fail threshold, 0 reachable)", c.Level)
			}
		}
	}
	if !found {
		t.Fatalf("expected a backend_reachability check")
	}
}
