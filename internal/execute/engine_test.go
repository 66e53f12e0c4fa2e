package execute

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/runlet/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

// shCommand builds a Command that runs script under /bin/sh.
func shCommand(script string) Command {
	return Command{Argv: []string{"/bin/sh", "-c", script}}
}

func mustRun(t *testing.T, cmd Command) *Result {
	t.Helper()
	res, err := New().Run(cmd)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return res
}

func TestRunNoOutput(t *testing.T) {
	res := mustRun(t, shCommand("exit 0"))
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "" || res.Stderr != "" {
		t.Errorf("expected empty output, got stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestRunExitCodePropagation(t *testing.T) {
	for _, code := range []int{0, 1, 3, 42, 127} {
		res := mustRun(t, shCommand(fmt.Sprintf("exit %d", code)))
		if res.ExitCode != code {
			t.Errorf("exit %d: got exit code %d", code, res.ExitCode)
		}
	}
}

func TestRunCapturesBothStreams(t *testing.T) {
	res := mustRun(t, shCommand(`printf out-data; printf err-data 1>&2`))
	if res.Stdout != "out-data" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "out-data")
	}
	if res.Stderr != "err-data" {
		t.Errorf("stderr = %q, want %q", res.Stderr, "err-data")
	}
}

// The key regression test for the multiplexing loop: a child writing tens
// of kilobytes to both streams at once would deadlock a supervisor that
// read the pipes sequentially.
func TestRunHighVolumeBothStreams(t *testing.T) {
	const (
		line  = "abcdefghijklmnopqrstuvwxyz012345" // 32 bytes
		count = 2000
	)
	script := fmt.Sprintf(
		`i=0; while [ $i -lt %d ]; do printf %s; printf %s 1>&2; i=$((i+1)); done`,
		count, line, line)

	res := mustRun(t, shCommand(script))

	want := strings.Repeat(line, count)
	if res.Stdout != want {
		t.Errorf("stdout: got %d bytes, want %d", len(res.Stdout), len(want))
	}
	if res.Stderr != want {
		t.Errorf("stderr: got %d bytes, want %d", len(res.Stderr), len(want))
	}
}

func TestRunCallbackChunksConcatenateToResult(t *testing.T) {
	cmd := shCommand(`printf one; sleep 0.05; printf err-one 1>&2; sleep 0.05; printf two; printf err-two 1>&2`)

	var gotOut, gotErr strings.Builder
	cmd.Notify = []Stream{Stdout, Stderr}
	cmd.OnEvent = func(ev Event) {
		switch ev.Stream {
		case Stdout:
			gotOut.Write(ev.Data)
		case Stderr:
			gotErr.Write(ev.Data)
		}
		if len(ev.Data) == 0 {
			t.Error("callback dispatched with empty chunk")
		}
	}

	res := mustRun(t, cmd)

	if gotOut.String() != res.Stdout {
		t.Errorf("stdout chunks %q != result %q", gotOut.String(), res.Stdout)
	}
	if gotErr.String() != res.Stderr {
		t.Errorf("stderr chunks %q != result %q", gotErr.String(), res.Stderr)
	}
	if res.Stdout != "onetwo" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "onetwo")
	}
	if res.Stderr != "err-oneerr-two" {
		t.Errorf("stderr = %q, want %q", res.Stderr, "err-oneerr-two")
	}
}

func TestRunUnsubscribedOutputStillRecorded(t *testing.T) {
	cmd := shCommand(`printf visible; printf also-visible 1>&2`)
	cmd.Notify = []Stream{Stdout} // stderr not subscribed
	var sawStderr bool
	cmd.OnEvent = func(ev Event) {
		if ev.Stream == Stderr {
			sawStderr = true
		}
	}

	res := mustRun(t, cmd)

	if sawStderr {
		t.Error("callback fired for unsubscribed stderr")
	}
	if res.Stderr != "also-visible" {
		t.Errorf("unsubscribed stderr not recorded: %q", res.Stderr)
	}
}

func TestRunStdinEcho(t *testing.T) {
	cmd := shCommand(`read line; printf 'got:%s' "$line"`)
	cmd.Notify = []Stream{Stdin}

	wrote := false
	cmd.OnEvent = func(ev Event) {
		if ev.Stream != Stdin || wrote {
			return
		}
		wrote = true
		if _, err := ev.Writer.Write([]byte("hello\n")); err != nil {
			t.Errorf("stdin write failed: %v", err)
		}
	}

	res := mustRun(t, cmd)

	if !wrote {
		t.Fatal("stdin-ready notification never fired")
	}
	if res.Stdout != "got:hello" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "got:hello")
	}
}

func TestRunTimeoutLeavesChildRunning(t *testing.T) {
	cmd := shCommand("sleep 30")
	cmd.Timeout = 200 * time.Millisecond

	res, err := New().Run(cmd)
	if res != nil {
		t.Fatalf("expected no result on timeout, got %+v", res)
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !errors.Is(err, ErrTimeoutExceeded) {
		t.Error("TimeoutError does not match ErrTimeoutExceeded")
	}
	if te.Pid <= 0 {
		t.Fatalf("TimeoutError has no pid: %d", te.Pid)
	}

	// The engine does not terminate the child; verify it is still alive,
	// then clean it up ourselves.
	if err := unix.Kill(te.Pid, 0); err != nil {
		t.Errorf("child %d not running after timeout: %v", te.Pid, err)
	}
	_ = unix.Kill(te.Pid, unix.SIGKILL)
	var ws unix.WaitStatus
	_, _ = unix.Wait4(te.Pid, &ws, 0, nil)
}

func TestRunCallbackWithoutSubscriptionFailsEagerly(t *testing.T) {
	resolved := false
	eng := New(WithResolver(func(name string) (string, error) {
		resolved = true
		return "", errors.New("should not be called")
	}))

	cmd := shCommand("exit 0")
	cmd.OnEvent = func(Event) {}

	_, err := eng.Run(cmd)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if resolved {
		t.Error("resolver was consulted before the configuration check")
	}
}

func TestRunEmptyArgv(t *testing.T) {
	_, err := New().Run(Command{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunCommandUnavailable(t *testing.T) {
	_, err := New().Run(Command{Argv: []string{"runlet-no-such-binary-xyzzy"}})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if !errors.Is(err, ErrCommandUnavailable) {
		t.Error("UnavailableError does not match ErrCommandUnavailable")
	}
	if !strings.Contains(ue.Error(), "runlet-no-such-binary-xyzzy") {
		t.Errorf("error does not name the missing file: %v", ue)
	}
}

func TestRunLaunchErrorOnBadWorkdir(t *testing.T) {
	cmd := shCommand("exit 0")
	cmd.Dir = filepath.Join(os.TempDir(), "runlet-no-such-dir-xyzzy")

	_, err := New().Run(cmd)
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("expected launch error, got %v", err)
	}
}

func TestRunEnvOverride(t *testing.T) {
	t.Setenv("RUNLET_TEST_AMBIENT", "ambient")
	cmd := shCommand(`printf '%s/%s' "$RUNLET_TEST_AMBIENT" "$RUNLET_TEST_OVERRIDE"`)
	cmd.Env = map[string]string{"RUNLET_TEST_OVERRIDE": "override"}

	res := mustRun(t, cmd)
	if res.Stdout != "ambient/override" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "ambient/override")
	}
}

func TestRunEnvOverrideWinsOnCollision(t *testing.T) {
	t.Setenv("RUNLET_TEST_COLLIDE", "ambient")
	cmd := shCommand(`printf '%s' "$RUNLET_TEST_COLLIDE"`)
	cmd.Env = map[string]string{"RUNLET_TEST_COLLIDE": "override"}

	res := mustRun(t, cmd)
	if res.Stdout != "override" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "override")
	}
}

func TestRunWorkdir(t *testing.T) {
	dir := t.TempDir()
	callerCwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	cmd := shCommand("pwd")
	cmd.Dir = dir
	res := mustRun(t, cmd)

	got := strings.TrimSpace(res.Stdout)
	want, _ := filepath.EvalSymlinks(dir)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("child cwd = %q, want %q", got, want)
	}

	after, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if after != callerCwd {
		t.Errorf("caller cwd changed from %q to %q", callerCwd, after)
	}
}

func TestRunSlowProducer(t *testing.T) {
	// Output spread over several poll intervals must still arrive whole
	// and in order.
	res := mustRun(t, shCommand(`for w in a b c; do printf "$w"; sleep 0.15; done`))
	if res.Stdout != "abc" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "abc")
	}
}
