package execute

import (
	"os"
	"path/filepath"
	"strings"
)

// InstallContext describes the installation runlet is running from. It
// exists so the dynamic-library search-path adjustment for self-contained
// installs stays behind one capability check instead of platform
// conditionals scattered through the launcher.
type InstallContext interface {
	// SelfContained reports whether runlet runs from a self-contained
	// installation with an embedded program tree.
	SelfContained() bool
	// EmbeddedRoot returns the root of the embedded directory.
	EmbeddedRoot() string
	// LibDir returns the installation's shared-library directory.
	LibDir() string
	// LibPathVar returns the dynamic-library search-path variable for
	// this platform (e.g. "DYLD_LIBRARY_PATH" on macOS), or "" when the
	// platform needs no adjustment.
	LibPathVar() string
}

// hostInstall is the default InstallContext: a regular install that needs
// no library-path adjustment.
type hostInstall struct{}

func (hostInstall) SelfContained() bool  { return false }
func (hostInstall) EmbeddedRoot() string { return "" }
func (hostInstall) LibDir() string       { return "" }
func (hostInstall) LibPathVar() string   { return "" }

// adjustLibraryPath mutates env for executables that live inside a
// self-contained installation's embedded tree: the install's library
// directory is prepended to the platform's search-path variable so the
// child finds the bundled shared libraries. Setuid/setgid executables get
// the variable cleared instead, since the OS ignores (or worse, honors)
// injected search paths for privileged binaries.
func adjustLibraryPath(env map[string]string, exePath string, ic InstallContext) {
	if ic == nil || !ic.SelfContained() {
		return
	}
	varName := ic.LibPathVar()
	if varName == "" {
		return
	}
	root := ic.EmbeddedRoot()
	if root == "" || !pathWithin(root, exePath) {
		return
	}

	if isPrivileged(exePath) {
		delete(env, varName)
		return
	}

	libDir := ic.LibDir()
	if cur := env[varName]; cur != "" {
		env[varName] = libDir + string(os.PathListSeparator) + cur
	} else {
		env[varName] = libDir
	}
}

// pathWithin reports whether p is inside root.
func pathWithin(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// isPrivileged reports whether the file at path is setuid or setgid.
func isPrivileged(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&(os.ModeSetuid|os.ModeSetgid) != 0
}
