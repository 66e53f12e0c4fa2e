package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesOwnPid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runlet.lock")
	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = h.Release() })

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != fmt.Sprintf("%d", os.Getpid()) {
		t.Fatalf("lock file contents = %q, want own pid", got)
	}
}

func TestAcquireContendedReportsHolder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runlet.lock")
	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	t.Cleanup(func() { _ = h.Release() })

	// flock is per open file description, so a second open in the same
	// process still contends.
	_, err = Acquire(path)
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire error = %v, want *HeldError", err)
	}
	if held.Pid != os.Getpid() {
		t.Errorf("held.Pid = %d, want %d", held.Pid, os.Getpid())
	}
	if held.Path != path {
		t.Errorf("held.Path = %q, want %q", held.Path, path)
	}
}

func TestReleaseRemovesFileAndAllowsReacquire(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runlet.lock")
	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release")
	}

	h2, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = h2.Release()
}

func TestReleaseNilHandle(t *testing.T) {
	t.Parallel()

	var h *Handle
	if err := h.Release(); err != nil {
		t.Fatalf("Release on nil handle: %v", err)
	}
}
