// Package doctor validates a runlet installation: configuration, history
// database, instance lock, and a live engine smoke run.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/mattjoyce/runlet/internal/config"
	"github.com/mattjoyce/runlet/internal/execute"
	"github.com/mattjoyce/runlet/internal/history"
	"github.com/mattjoyce/runlet/internal/lock"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host it runs on.
type Doctor struct {
	cfg *config.Config

	// engine is swappable for tests.
	engine interface {
		Run(cmd execute.Command) (*execute.Result, error)
	}
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, engine: execute.New()}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.checkAPIConfig(r)
	d.checkHistory(ctx, r)
	d.checkLock(r)
	d.checkEngine(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkAPIConfig flags risky but legal API settings. Hard config errors are
// already rejected at load time.
func (d *Doctor) checkAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API enabled without authentication; anyone reaching the listener can execute commands")
	}
	if host, _, err := net.SplitHostPort(d.cfg.API.Listen); err == nil {
		if host != "" && host != "127.0.0.1" && host != "localhost" && host != "::1" {
			d.addWarning(r, "api", "api.listen", fmt.Sprintf("listening on non-loopback address %q", d.cfg.API.Listen))
		}
	}
}

// checkHistory verifies the history database can actually be opened and
// written at the configured path.
func (d *Doctor) checkHistory(ctx context.Context, r *Result) {
	path := d.cfg.History.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			d.addError(r, "history", "history.path", fmt.Sprintf("cannot create history directory: %v", err))
			return
		}
	}

	store, err := history.Open(ctx, path)
	if err != nil {
		d.addError(r, "history", "history.path", fmt.Sprintf("cannot open history database: %v", err))
		return
	}
	if err := store.Close(); err != nil {
		d.addWarning(r, "history", "history.path", fmt.Sprintf("closing history database: %v", err))
	}
}

// checkLock probes the instance lock. A held lock is a warning, not an
// error: the service may legitimately be running.
func (d *Doctor) checkLock(r *Result) {
	path := d.cfg.Lock.Path
	if path == "" {
		return
	}

	h, err := lock.Acquire(path)
	if err != nil {
		if held, ok := err.(*lock.HeldError); ok {
			d.addWarning(r, "lock", "lock.path", held.Error())
			return
		}
		d.addError(r, "lock", "lock.path", fmt.Sprintf("cannot acquire instance lock: %v", err))
		return
	}
	_ = h.Release()
}

// checkEngine runs a trivial child to prove spawn, capture, and reaping
// work on this host.
func (d *Doctor) checkEngine(r *Result) {
	res, err := d.engine.Run(execute.Command{Argv: []string{"/bin/sh", "-c", "printf ok"}})
	if err != nil {
		d.addError(r, "engine", "", fmt.Sprintf("smoke run failed: %v", err))
		return
	}
	if res.ExitCode != 0 || res.Stdout != "ok" {
		d.addError(r, "engine", "", fmt.Sprintf("smoke run misbehaved: exit=%d stdout=%q", res.ExitCode, res.Stdout))
	}
}
