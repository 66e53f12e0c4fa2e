package execute

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeInstall struct {
	selfContained bool
	root          string
	libDir        string
	varName       string
}

func (f fakeInstall) SelfContained() bool  { return f.selfContained }
func (f fakeInstall) EmbeddedRoot() string { return f.root }
func (f fakeInstall) LibDir() string       { return f.libDir }
func (f fakeInstall) LibPathVar() string   { return f.varName }

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write executable: %v", err)
	}
	return path
}

func TestAdjustLibraryPathPrepends(t *testing.T) {
	root := t.TempDir()
	exe := writeExecutable(t, root, "tool")
	ic := fakeInstall{selfContained: true, root: root, libDir: "/opt/runlet/lib", varName: "LD_LIBRARY_PATH"}

	env := map[string]string{}
	adjustLibraryPath(env, exe, ic)
	if env["LD_LIBRARY_PATH"] != "/opt/runlet/lib" {
		t.Errorf("LD_LIBRARY_PATH = %q", env["LD_LIBRARY_PATH"])
	}

	env = map[string]string{"LD_LIBRARY_PATH": "/usr/lib"}
	adjustLibraryPath(env, exe, ic)
	want := "/opt/runlet/lib" + string(os.PathListSeparator) + "/usr/lib"
	if env["LD_LIBRARY_PATH"] != want {
		t.Errorf("LD_LIBRARY_PATH = %q, want %q", env["LD_LIBRARY_PATH"], want)
	}
}

func TestAdjustLibraryPathSkipsOutsideEmbeddedRoot(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	exe := writeExecutable(t, elsewhere, "tool")
	ic := fakeInstall{selfContained: true, root: root, libDir: "/opt/runlet/lib", varName: "LD_LIBRARY_PATH"}

	env := map[string]string{"LD_LIBRARY_PATH": "/usr/lib"}
	adjustLibraryPath(env, exe, ic)
	if env["LD_LIBRARY_PATH"] != "/usr/lib" {
		t.Errorf("env changed for executable outside embedded root: %q", env["LD_LIBRARY_PATH"])
	}
}

func TestAdjustLibraryPathSkipsRegularInstall(t *testing.T) {
	root := t.TempDir()
	exe := writeExecutable(t, root, "tool")

	env := map[string]string{"LD_LIBRARY_PATH": "/usr/lib"}
	adjustLibraryPath(env, exe, fakeInstall{selfContained: false, root: root, varName: "LD_LIBRARY_PATH"})
	adjustLibraryPath(env, exe, hostInstall{})
	adjustLibraryPath(env, exe, nil)
	if env["LD_LIBRARY_PATH"] != "/usr/lib" {
		t.Errorf("env changed for regular install: %q", env["LD_LIBRARY_PATH"])
	}
}

func TestAdjustLibraryPathClearsForPrivilegedBinary(t *testing.T) {
	root := t.TempDir()
	exe := writeExecutable(t, root, "tool")
	if err := os.Chmod(exe, 0o755|os.ModeSetuid); err != nil {
		t.Fatalf("chmod setuid: %v", err)
	}
	info, err := os.Stat(exe)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSetuid == 0 {
		t.Skip("filesystem dropped the setuid bit")
	}

	ic := fakeInstall{selfContained: true, root: root, libDir: "/opt/runlet/lib", varName: "LD_LIBRARY_PATH"}
	env := map[string]string{"LD_LIBRARY_PATH": "/usr/lib"}
	adjustLibraryPath(env, exe, ic)
	if _, ok := env["LD_LIBRARY_PATH"]; ok {
		t.Errorf("LD_LIBRARY_PATH not cleared for setuid binary: %q", env["LD_LIBRARY_PATH"])
	}
}

func TestPathWithin(t *testing.T) {
	tests := []struct {
		root, p string
		want    bool
	}{
		{"/opt/runlet", "/opt/runlet/bin/tool", true},
		{"/opt/runlet", "/opt/runlet", true},
		{"/opt/runlet", "/opt/other/bin/tool", false},
		{"/opt/runlet", "/opt", false},
		{"/opt/runlet", "/opt/runlet/../evil", false},
	}
	for _, tt := range tests {
		if got := pathWithin(tt.root, filepath.Clean(tt.p)); got != tt.want {
			t.Errorf("pathWithin(%q, %q) = %v, want %v", tt.root, tt.p, got, tt.want)
		}
	}
}
