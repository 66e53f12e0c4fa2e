package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/runlet/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(status Status, finished time.Time) *Run {
	return &Run{
		Argv:       []string{"/bin/sh", "-c", "echo hi"},
		Workdir:    "/tmp",
		Status:     status,
		ExitCode:   0,
		Stdout:     "hi\n",
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := sampleRun(StatusSucceeded, time.Now())
	id, err := s.Record(ctx, run)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == "" {
		t.Fatal("no id assigned")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("status = %q", got.Status)
	}
	if len(got.Argv) != 3 || got.Argv[2] != "echo hi" {
		t.Errorf("argv round-trip broken: %v", got.Argv)
	}
	if got.Stdout != "hi\n" {
		t.Errorf("stdout = %q", got.Stdout)
	}
	if got.Duration() <= 0 {
		t.Errorf("duration = %v", got.Duration())
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		run := sampleRun(StatusSucceeded, base.Add(time.Duration(i)*time.Minute))
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.Record(ctx, run); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	runs, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Error("runs not ordered newest first")
		}
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := sampleRun(StatusFailed, time.Now().Add(-48*time.Hour))
	recent := sampleRun(StatusSucceeded, time.Now())
	if _, err := s.Record(ctx, old); err != nil {
		t.Fatal(err)
	}
	keepID, err := s.Record(ctx, recent)
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
	if _, err := s.Get(ctx, keepID); err != nil {
		t.Errorf("recent run pruned: %v", err)
	}
}
