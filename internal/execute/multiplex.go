package execute

import (
	"bytes"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// pollInterval caps each readiness wait so the deadline is checked
	// promptly even when nothing becomes ready.
	pollInterval = 100 * time.Millisecond

	// drainChunk is the read size used when draining a ready stream.
	drainChunk = 32 * 1024

	// reapBackoff is the retry interval while waiting for the exit status.
	reapBackoff = 10 * time.Millisecond

	// defaultReapBudget bounds the exit-status wait when no deadline was
	// configured.
	defaultReapBudget = 24 * time.Hour
)

// supervise is the readiness loop: one poll per iteration covers both
// output pipes and, when subscribed, stdin. It drains ready streams into
// the accumulators, dispatches subscribed chunks, watches for process exit
// and enforces the deadline. After exit it drains any trailing output and
// collects the exit status.
func (e *Engine) supervise(h *childHandle, deadline time.Time, subs streamSet, cb Callback) (*Result, error) {
	var outAcc, errAcc bytes.Buffer
	hasDeadline := !deadline.IsZero()
	outOpen, errOpen := true, true
	stdinOpen := subs.stdin && cb != nil

	for {
		fds := make([]unix.PollFd, 0, 3)
		outIdx, errIdx, inIdx := -1, -1, -1
		if outOpen {
			outIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(h.stdoutFd), Events: unix.POLLIN})
		}
		if errOpen {
			errIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(h.stderrFd), Events: unix.POLLIN})
		}
		if stdinOpen {
			inIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(h.stdinFd), Events: unix.POLLOUT})
		}

		wait := pollInterval
		if hasDeadline {
			if remain := time.Until(deadline); remain < wait {
				wait = remain
			}
			if wait < 0 {
				wait = 0
			}
		}

		if _, err := unix.Poll(fds, int(wait.Milliseconds())); err != nil && err != unix.EINTR {
			return nil, fmt.Errorf("poll child pipes: %w", err)
		}

		if hasDeadline && time.Now().After(deadline) {
			e.logger.Debug("deadline exceeded in supervision loop", "pid", h.pid)
			return nil, &TimeoutError{Pid: h.pid}
		}

		if outIdx >= 0 && fds[outIdx].Revents != 0 {
			outOpen = drain(h.stdoutFd, Stdout, &outAcc, subs.stdout, cb)
		}
		if errIdx >= 0 && fds[errIdx].Revents != 0 {
			errOpen = drain(h.stderrFd, Stderr, &errAcc, subs.stderr, cb)
		}

		// Exit must be checked before offering stdin, so the callback is
		// never handed a pipe whose reader is already gone.
		if h.tryReap() {
			break
		}

		if inIdx >= 0 {
			if fds[inIdx].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
				stdinOpen = false
			} else if fds[inIdx].Revents&unix.POLLOUT != 0 {
				cb(Event{Stream: Stdin, Writer: h.stdin})
			}
		}
	}

	// Data may have arrived between the last drain and exit detection.
	if outOpen {
		drain(h.stdoutFd, Stdout, &outAcc, subs.stdout, cb)
	}
	if errOpen {
		drain(h.stderrFd, Stderr, &errAcc, subs.stderr, cb)
	}

	if err := h.awaitStatus(deadline); err != nil {
		return nil, err
	}

	return &Result{
		ExitCode: exitCode(h.status),
		Stdout:   outAcc.String(),
		Stderr:   errAcc.String(),
	}, nil
}

// drain reads everything currently available from fd in one pass, stopping
// at would-block, appends it to acc and, when subscribed, dispatches the
// chunk. Returns false once the stream reached EOF or failed.
func drain(fd int, st Stream, acc *bytes.Buffer, subscribed bool, cb Callback) bool {
	buf := make([]byte, drainChunk)
	start := acc.Len()
	open := true
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			acc.Write(buf[:n])
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			break
		}
		// EOF or read failure: either way the stream is done.
		open = false
		break
	}

	if subscribed && cb != nil && acc.Len() > start {
		chunk := make([]byte, acc.Len()-start)
		copy(chunk, acc.Bytes()[start:])
		cb(Event{Stream: st, Data: chunk})
	}
	return open
}

// tryReap polls for process exit without blocking. Once the status has
// been collected it keeps returning true.
func (h *childHandle) tryReap() bool {
	if h.reaped {
		return true
	}
	var ws unix.WaitStatus
	pid, err := unix.Wait4(h.pid, &ws, unix.WNOHANG, nil)
	if err == unix.EINTR {
		return false
	}
	if err != nil {
		// ECHILD: someone else collected the status. Nothing more to wait for.
		h.reaped = true
		return true
	}
	if pid == h.pid {
		h.status = ws
		h.reaped = true
		return true
	}
	return false
}

// awaitStatus waits for the exit status, bounded by the remaining deadline
// or by defaultReapBudget when no deadline was configured.
func (h *childHandle) awaitStatus(deadline time.Time) error {
	budget := defaultReapBudget
	if !deadline.IsZero() {
		budget = time.Until(deadline)
		if budget < 0 {
			budget = 0
		}
	}
	limit := time.Now().Add(budget)

	for !h.tryReap() {
		if time.Now().After(limit) {
			return &TimeoutError{Pid: h.pid}
		}
		time.Sleep(reapBackoff)
	}
	return nil
}

// exitCode maps a wait status to the conventional shell exit code:
// the exit status for normal termination, 128+signal otherwise.
func exitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
