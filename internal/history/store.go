// Package history persists completed runs to a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/runlet/internal/log"
)

// Status classifies how a run ended.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusTimedOut     Status = "timed_out"
	StatusLaunchFailed Status = "launch_failed"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one recorded execution.
type Run struct {
	ID         string
	Argv       []string
	Workdir    string
	Status     Status
	ExitCode   int
	Stdout     string
	Stderr     string
	Detail     string // fault description for failed/timed_out/launch_failed
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock duration of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path and
// ensures required tables exist.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	// SQLite on a network mount corrupts under concurrent access; warn
	// but keep going, the operator may know better.
	if fsType, networked := isNetworkFilesystem(dir); networked {
		log.WithComponent("history").Warn("history database is on a network filesystem",
			"path", path, "fs_type", fsType)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
  id          TEXT PRIMARY KEY,
  argv        JSON NOT NULL,
  workdir     TEXT NOT NULL DEFAULT '',
  status      TEXT NOT NULL,
  exit_code   INTEGER NOT NULL DEFAULT 0,
  stdout      TEXT NOT NULL DEFAULT '',
  stderr      TEXT NOT NULL DEFAULT '',
  detail      TEXT NOT NULL DEFAULT '',
  started_at  TEXT NOT NULL,
  finished_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap history schema: %w", err)
		}
	}
	return nil
}

// Record inserts a completed run. A zero ID is assigned a fresh UUID.
// The (possibly assigned) id is returned.
func (s *Store) Record(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	argvJSON, err := json.Marshal(run.Argv)
	if err != nil {
		return "", fmt.Errorf("marshal argv: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, argv, workdir, status, exit_code, stdout, stderr, detail, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(argvJSON), run.Workdir, string(run.Status), run.ExitCode,
		run.Stdout, run.Stderr, run.Detail,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// Get returns a single run by id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, argv, workdir, status, exit_code, stdout, stderr, detail, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List returns the most recent runs, newest first, up to limit.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, argv, workdir, status, exit_code, stdout, stderr, detail, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs that finished before the cutoff. Returns the number
// of deleted rows.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var argvJSON, status, started, finished string
	if err := row.Scan(&run.ID, &argvJSON, &run.Workdir, &status, &run.ExitCode,
		&run.Stdout, &run.Stderr, &run.Detail, &started, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(argvJSON), &run.Argv); err != nil {
		return nil, fmt.Errorf("unmarshal argv: %w", err)
	}
	run.Status = Status(status)

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}
