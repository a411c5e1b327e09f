package pidfile

import (
	"os"
	"testing"
)

func TestWriteReadRemove(t *testing.T) {
	if err := Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer Remove()

	pid, ok, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatalf("expected pid file to exist after Write")
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	if err := Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, ok, err = Read()
	if err != nil {
		t.Fatalf("Read after Remove: %v", err)
	}
	if ok {
		t.Errorf("expected no pid file after Remove")
	}
}

func TestAliveForCurrentProcess(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Errorf("Alive(os.Getpid()) = false, want true")
	}
}

func TestCheckReportsStaleForDeadPid(t *testing.T) {
	if err := Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer Remove()

	path, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	// A pid astronomically unlikely to be alive on any test host.
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatalf("overwrite pid file: %v", err)
	}

	status, err := Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !status.Recorded {
		t.Fatalf("expected Recorded = true")
	}
	if !status.Stale {
		t.Errorf("expected Stale = true for a dead pid")
	}
}

func TestCheckAbsentWhenNoFile(t *testing.T) {
	Remove()
	status, err := Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.Recorded {
		t.Errorf("expected Recorded = false when no pid file exists")
	}
}
