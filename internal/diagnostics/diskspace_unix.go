//go:build !windows

package diagnostics

import "syscall"

// getDiskSpace returns space available to unprivileged users on the
// filesystem holding path.
func getDiskSpace(path string) (*DiskSpaceDetails, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	return newDiskSpaceDetails(path, int64(stat.Blocks)*int64(stat.Bsize), int64(stat.Bavail)*int64(stat.Bsize)), nil
}
