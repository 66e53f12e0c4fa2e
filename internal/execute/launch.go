package execute

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// childHandle owns one spawned child and the parent-side pipe ends. It is
// owned by exactly one Run invocation and never shared.
type childHandle struct {
	pid int

	stdin  *os.File // write end, blocking so callback writes see backpressure
	stdout *os.File // read end, non-blocking
	stderr *os.File // read end, non-blocking

	stdinFd  int
	stdoutFd int
	stderrFd int

	status unix.WaitStatus
	reaped bool
}

// launch spawns the child described by cmd with exePath as the resolved
// program. All three standard streams are connected to fresh pipes; the
// child-side ends are closed in the parent once the process has started.
func (e *Engine) launch(cmd Command, exePath string) (*childHandle, error) {
	if cmd.Dir != "" {
		info, err := os.Stat(cmd.Dir)
		if err != nil {
			return nil, &LaunchError{Reason: fmt.Sprintf("workdir %q: %v", cmd.Dir, err)}
		}
		if !info.IsDir() {
			return nil, &LaunchError{Reason: fmt.Sprintf("workdir %q is not a directory", cmd.Dir)}
		}
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Reason: fmt.Sprintf("stdin pipe: %v", err)}
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, &LaunchError{Reason: fmt.Sprintf("stdout pipe: %v", err)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, &LaunchError{Reason: fmt.Sprintf("stderr pipe: %v", err)}
	}

	child := &exec.Cmd{
		Path:   exePath,
		Args:   cmd.Argv,
		Dir:    cmd.Dir,
		Env:    buildEnv(cmd.Env, exePath, e.install),
		Stdin:  stdinR,
		Stdout: stdoutW,
		Stderr: stderrW,
	}

	if err := child.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, &LaunchError{Reason: err.Error()}
	}

	// Child holds its own copies now.
	closeAll(stdinR, stdoutW, stderrW)

	h := &childHandle{
		pid:    child.Process.Pid,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
	}

	// Fd() switches a pipe to blocking mode, which is what we want for
	// stdin; the output ends go back to non-blocking so drains stop at
	// would-block instead of stalling the loop.
	h.stdinFd = int(stdinW.Fd())
	h.stdoutFd = int(stdoutR.Fd())
	h.stderrFd = int(stderrR.Fd())
	_ = unix.SetNonblock(h.stdoutFd, true)
	_ = unix.SetNonblock(h.stderrFd, true)

	return h, nil
}

// close releases the parent-side pipe ends. Safe to call more than once.
func (h *childHandle) close() {
	closeAll(h.stdin, h.stdout, h.stderr)
	h.stdin, h.stdout, h.stderr = nil, nil, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// buildEnv merges overrides onto the ambient environment (override wins)
// and applies the self-contained-install library path adjustment.
func buildEnv(overrides map[string]string, exePath string, ic InstallContext) []string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		env[k] = v
	}

	adjustLibraryPath(env, exePath, ic)

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
