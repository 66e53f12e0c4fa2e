package execute

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for programmatic detection with errors.Is.
var (
	ErrCommandUnavailable = errors.New("command unavailable")
	ErrLaunchFailed       = errors.New("launch failed")
	ErrTimeoutExceeded    = errors.New("timeout exceeded")
	ErrConfiguration      = errors.New("invalid configuration")
)

// UnavailableError is returned when argv[0] cannot be resolved to an
// executable. It is raised before any spawn attempt.
type UnavailableError struct {
	Name string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("command %q not found on %s", e.Name, runtime.GOOS)
}

func (e *UnavailableError) Unwrap() error { return ErrCommandUnavailable }

// LaunchError is returned when the spawn call itself fails. It carries only
// the underlying cause's message, never the underlying error type.
type LaunchError struct {
	Reason string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching child process: %s", e.Reason)
}

func (e *LaunchError) Unwrap() error { return ErrLaunchFailed }

// TimeoutError is returned when a deadline is exceeded, either inside the
// supervision loop or while collecting the exit status. The child is left
// running; Pid lets the caller terminate it.
type TimeoutError struct {
	Pid int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution deadline exceeded (child pid %d still running)", e.Pid)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeoutExceeded }

// ConfigError is returned for caller mistakes detected before any process
// is spawned.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid command configuration: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
