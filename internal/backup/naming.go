package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// ArchivePrefix starts the name of every archive this tool writes.
	ArchivePrefix = "plex_backup_"

	// TimestampLayout encodes the run time in archive names. Names sort
	// lexicographically in time order.
	TimestampLayout = "20060102150405"
)

// ArchiveName returns the archive file name for a run at ts.
func ArchiveName(ts time.Time, ext string) string {
	return ArchivePrefix + ts.Format(TimestampLayout) + "." + ext
}

// ArchiveInfo describes an archive found in the backup root.
type ArchiveInfo struct {
	Name      string
	Path      string
	Size      int64
	Timestamp time.Time
}

// ListArchives returns the archives in dir for extension ext, newest first.
// Files that do not follow the archive naming scheme are ignored. A missing
// dir yields an empty list.
func ListArchives(dir, ext string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	suffix := "." + ext
	var archives []ArchiveInfo
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, ArchivePrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, ArchivePrefix), suffix)
		ts, err := time.ParseInLocation(TimestampLayout, stamp, time.Local)
		if err != nil {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		archives = append(archives, ArchiveInfo{
			Name:      name,
			Path:      filepath.Join(dir, name),
			Size:      info.Size(),
			Timestamp: ts,
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Name > archives[j].Name
	})
	return archives, nil
}

// SelectLatest returns the path of the lexicographically greatest archive
// name in dir for extension ext.
func SelectLatest(dir, ext string) (string, error) {
	archives, err := ListArchives(dir, ext)
	if err != nil {
		return "", err
	}
	if len(archives) == 0 {
		return "", fmt.Errorf("%w in %s for format %s", ErrNoBackupFound, dir, ext)
	}
	return archives[0].Path, nil
}
