// Package pidlock enforces single-task exclusion via a PID file at a fixed
// path under the state root. A stale PID (process no longer alive) is
// detected and the lock reclaimed rather than left permanently stuck.
package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/agentforge/pipeline/pkg/taxonomy"
)

// Lock is an acquired, held PID file. Release removes it if it still holds
// this process's PID.
type Lock struct {
	path string
	pid  int
}

// Acquire reads path if present. If the recorded PID belongs to a live
// process, it returns a ValidationError naming the blocking PID. If the
// file is absent, stale, or unparseable, it is removed (or never existed)
// and this process's PID is written in its place.
func Acquire(path string) (*Lock, error) {
	if raw, err := os.ReadFile(path); err == nil {
		if pid, ok := parsePID(raw); ok && processAlive(pid) {
			return nil, taxonomy.NewValidationError("pidlock", fmt.Sprintf("Another task is running (PID %d)", pid))
		}
		// Stale or unparseable: fall through and reclaim the file.
		_ = os.Remove(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read PID file %s: %w", path, err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return nil, fmt.Errorf("write PID file %s: %w", path, err)
	}

	return &Lock{path: path, pid: pid}, nil
}

// Release removes the PID file if it still holds this process's own PID —
// never another task's lock, in case of a reclaim race.
func (l *Lock) Release() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read PID file %s: %w", l.path, err)
	}
	if pid, ok := parsePID(raw); !ok || pid != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file %s: %w", l.path, err)
	}
	return nil
}

func parsePID(raw []byte) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive reports whether pid names a live process, using a signal-0
// test: sending signal 0 validates existence and permission without
// actually signaling the process.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
