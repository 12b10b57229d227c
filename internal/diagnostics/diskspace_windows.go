//go:build windows

package diagnostics

import (
	"golang.org/x/sys/windows"
)

// getDiskSpace returns space available to the calling user on the volume
// holding path.
func getDiskSpace(path string) (*DiskSpaceDetails, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return nil, err
	}

	return newDiskSpaceDetails(path, int64(totalBytes), int64(freeBytesAvailable)), nil
}
