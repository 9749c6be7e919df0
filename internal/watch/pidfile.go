package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
)

// PIDFile enforces the one-active-watcher-per-root singleton. An advisory
// flock on a sidecar lock file makes the create-if-absent check atomic;
// signal-0 probing catches stale files left by a crashed process.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile returns a manager for the PID file at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string { return p.path }

// Acquire claims the singleton: takes the advisory lock, rejects a live
// holder, clears a stale file, and writes the current PID.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire watcher lock: %w", err)
	}
	if !locked {
		return cerrs.ConcurrencyError(cerrs.ErrCodeWatcherRunning,
			"another watcher holds the lock for this project root", nil)
	}

	if pid, err := p.Read(); err == nil {
		if processExists(pid) {
			_ = p.lock.Unlock()
			return cerrs.ConcurrencyError(cerrs.ErrCodeWatcherRunning,
				fmt.Sprintf("watcher already running with pid %d", pid), nil)
		}
		// Dead holder: stale file, reclaim it.
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file and drops the lock.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return p.lock.Unlock()
}

// Read returns the PID stored in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, cerrs.ConcurrencyError(cerrs.ErrCodeStalePID,
			fmt.Sprintf("invalid pid file contents at %s", p.path), err)
	}
	return pid, nil
}

// IsRunning reports whether the stored PID names a live process.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	return processExists(pid)
}

// Signal sends sig to the stored PID.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// processExists probes a PID with signal 0; on Unix FindProcess always
// succeeds so the probe is the real check.
func processExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
