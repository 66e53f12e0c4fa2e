//go:build linux

package history

import (
	"golang.org/x/sys/unix"
)

const (
	linuxNFSMagic  = 0x6969
	linuxCIFSMagic = 0xFF534D42
	linuxSMBMagic  = 0x517B
	linuxSMB2Magic = 0xFE534D42
)

// isNetworkFilesystem reports whether path sits on a filesystem known to be
// unsafe for SQLite, along with its name.
func isNetworkFilesystem(path string) (string, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", false
	}

	switch uint64(stat.Type) {
	case linuxNFSMagic:
		return "nfs", true
	case linuxCIFSMagic:
		return "cifs", true
	case linuxSMBMagic:
		return "smbfs", true
	case linuxSMB2Magic:
		return "smb2", true
	default:
		return "", false
	}
}
