//go:build !linux

package history

// isNetworkFilesystem is a no-op where we have no reliable probe.
func isNetworkFilesystem(path string) (string, bool) {
	return "", false
}
