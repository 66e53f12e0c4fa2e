// Package lock guards against concurrent service instances sharing one
// history database. A PID file plus flock(2) keeps the lock alive exactly
// as long as the holding process does.
package lock

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// HeldError reports a lock already owned by another process. Pid is 0 when
// the holder could not be identified.
type HeldError struct {
	Path string
	Pid  int
}

func (e *HeldError) Error() string {
	if e.Pid > 0 {
		return fmt.Sprintf("lock %s held by pid %d", e.Path, e.Pid)
	}
	return fmt.Sprintf("lock %s held by another process", e.Path)
}

// Handle is an acquired instance lock. The flock is released when the
// process exits even if Release is never called.
type Handle struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock at path and records the
// current PID in it. A *HeldError is returned when another instance owns
// the lock.
func Acquire(path string) (*Handle, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		held := &HeldError{Path: path, Pid: holderPid(f)}
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, held
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if err := writePid(f); err != nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, err
	}

	return &Handle{path: path, f: f}, nil
}

func (h *Handle) Path() string { return h.path }

// Release drops the flock and removes the PID file. Safe on a nil handle.
func (h *Handle) Release() error {
	if h == nil || h.f == nil {
		return nil
	}
	_ = os.Remove(h.path)
	_ = unix.Flock(int(h.f.Fd()), unix.LOCK_UN)
	err := h.f.Close()
	h.f = nil
	return err
}

func writePid(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

// holderPid best-effort reads the PID the current holder wrote.
func holderPid(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(buf[:n])))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
