// Package execute runs a single child process, streams its output as it is
// produced, enforces a wall-clock deadline, and returns the exit code with
// the full accumulated stdout/stderr.
//
// The supervision loop is single-threaded: one readiness wait per iteration
// covers both output pipes (and optionally stdin), so neither stream can
// deadlock the other no matter how much the child writes.
package execute

import (
	"io"
	"time"
)

// Stream identifies one of the child's standard streams.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
	Stdin  Stream = "stdin"
)

// Command describes a single child process execution.
type Command struct {
	// Argv is the argument vector. Argv[0] is the program name and is
	// resolved to an absolute executable path before spawning.
	Argv []string

	// Dir is the child's working directory. Empty means the caller's
	// current directory. The caller's own working directory is never
	// changed.
	Dir string

	// Env contains environment overrides merged over the ambient
	// environment. An override wins on key collision.
	Env map[string]string

	// Timeout is the wall-clock execution budget. Zero means unbounded.
	Timeout time.Duration

	// Notify lists the streams the callback should be invoked for.
	Notify []Stream

	// OnEvent, when non-nil, receives one Event per observed stream
	// activity on a subscribed stream. It is called synchronously from
	// the supervision loop; it must return before the loop continues.
	OnEvent Callback
}

// Callback receives stream notifications during a run.
type Callback func(ev Event)

// Event is a single stream notification. For Stdout/Stderr, Data holds the
// drained chunk. For Stdin, Writer is the child's stdin; writes to it may
// block on pipe backpressure.
type Event struct {
	Stream Stream
	Data   []byte
	Writer io.Writer
}

// Result is the immutable outcome of a completed run. Every byte the child
// wrote to a stream appears here in arrival order, whether or not the
// stream was subscribed.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// streamSet is the subscription set for a run.
type streamSet struct {
	stdout bool
	stderr bool
	stdin  bool
}

func newStreamSet(streams []Stream) streamSet {
	var s streamSet
	for _, st := range streams {
		switch st {
		case Stdout:
			s.stdout = true
		case Stderr:
			s.stderr = true
		case Stdin:
			s.stdin = true
		}
	}
	return s
}

func (s streamSet) empty() bool {
	return !s.stdout && !s.stderr && !s.stdin
}
