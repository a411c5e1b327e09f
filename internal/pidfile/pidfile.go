// Package pidfile manages the daemon's PID file at ~/.bal/bal.pid. Home
// directory resolution follows the teacher's use of
// github.com/mitchellh/go-homedir wherever it needs a user-scoped path;
// liveness checking follows the teacher's docker manager pattern of
// probing a process directly rather than trusting the file's mere
// existence.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/sys/unix"
)

// Dir returns ~/.bal, creating it if necessary.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".bal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Path returns the full path to bal.pid.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bal.pid"), nil
}

// Write records the current process's PID, per §6's "one-line decimal PID,
// written on daemon start".
func Write() error {
	path, err := Path()
	if err != nil {
		return err
	}
	body := strconv.Itoa(os.Getpid())
	return os.WriteFile(path, []byte(body), 0o644)
}

// Remove deletes the PID file. Missing is not an error: it means there was
// nothing to clean up.
func Remove() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read returns the PID recorded on disk, or ok=false if no PID file exists.
func Read() (pid int, ok bool, err error) {
	path, err := Path()
	if err != nil {
		return 0, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, true, nil
}

// Alive reports whether pid refers to a live process, using signal 0 —
// sending no actual signal, just probing for ESRCH — so a recorded process
// id is verified rather than trusted.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Status reports the current PID-file state: whether a PID is recorded,
// whether the file is merely stale (recorded but the process is gone), and
// the PID itself.
type Status struct {
	Recorded bool
	PID      int
	Stale    bool
}

// Check reads the PID file and classifies it as absent, live, or stale. A
// stale PID file is a recoverable doctor finding, not a fatal error, per
// §6.
func Check() (Status, error) {
	pid, ok, err := Read()
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, nil
	}
	return Status{Recorded: true, PID: pid, Stale: !Alive(pid)}, nil
}
