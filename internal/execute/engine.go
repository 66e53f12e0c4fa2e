package execute

import (
	"log/slog"
	"os/exec"
	"time"

	"github.com/mattjoyce/runlet/internal/log"
)

// ResolverFunc maps a program name to an absolute executable path.
type ResolverFunc func(name string) (string, error)

// Engine executes commands. The zero value is not usable; construct with New.
type Engine struct {
	resolve ResolverFunc
	install InstallContext
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver overrides the default PATH-based program resolver.
func WithResolver(fn ResolverFunc) Option {
	return func(e *Engine) { e.resolve = fn }
}

// WithInstallContext sets the installation context used for the
// library-path adjustment of self-contained installs.
func WithInstallContext(ic InstallContext) Option {
	return func(e *Engine) { e.install = ic }
}

// WithLogger sets the logger. Logging is best-effort and never affects
// the outcome of a run.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine with PATH resolution and host-install defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		resolve: exec.LookPath,
		install: hostInstall{},
		logger:  log.WithComponent("execute"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cmd to completion and returns its Result. Exactly one of
// the return values is set: a fault never comes with a partial Result.
//
// Faults: ConfigError for caller mistakes (checked before anything is
// spawned), UnavailableError when argv[0] does not resolve, LaunchError
// when the spawn fails, TimeoutError when the deadline passes. A timed-out
// child is left running; the TimeoutError carries its pid.
func (e *Engine) Run(cmd Command) (*Result, error) {
	if len(cmd.Argv) == 0 {
		return nil, &ConfigError{Reason: "empty argv"}
	}
	subs := newStreamSet(cmd.Notify)
	if cmd.OnEvent != nil && subs.empty() {
		return nil, &ConfigError{Reason: "callback supplied but no streams subscribed"}
	}

	exePath, err := e.resolve(cmd.Argv[0])
	if err != nil {
		return nil, &UnavailableError{Name: cmd.Argv[0]}
	}

	h, err := e.launch(cmd, exePath)
	if err != nil {
		return nil, err
	}
	defer h.close()

	var deadline time.Time
	if cmd.Timeout > 0 {
		deadline = time.Now().Add(cmd.Timeout)
	}

	e.logger.Debug("child started", "pid", h.pid, "path", exePath, "timeout", cmd.Timeout)

	res, err := e.supervise(h, deadline, subs, cmd.OnEvent)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("child finished", "pid", h.pid, "exit_code", res.ExitCode,
		"stdout_bytes", len(res.Stdout), "stderr_bytes", len(res.Stderr))
	return res, nil
}
