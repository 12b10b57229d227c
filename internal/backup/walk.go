package backup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ExcludeSet holds directory and file basenames skipped during enumeration.
type ExcludeSet map[string]struct{}

// NewExcludeSet builds an ExcludeSet from a list of basenames.
func NewExcludeSet(names ...string) ExcludeSet {
	set := make(ExcludeSet, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports whether name is excluded.
func (s ExcludeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the excluded basenames in sorted order.
func (s ExcludeSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// File is a regular file found under the data directory.
type File struct {
	// Name is the slash-separated path relative to the enumeration root.
	Name string
	// Path is the absolute path on disk.
	Path string
	Size int64
}

// Enumerate lists every regular file under root. A directory whose basename
// is excluded is pruned and never descended into; an excluded file is
// skipped. A symlinked root is resolved before walking. Inside the tree a
// symlink to a regular file is archived through the link; links to
// directories, dangling links and other special files are ignored.
func Enumerate(root string, excludes ExcludeSet) ([]File, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}

	var files []File
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == resolved {
			return nil
		}

		if excludes.Has(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		var info fs.FileInfo
		switch {
		case d.Type().IsRegular():
			if info, err = d.Info(); err != nil {
				return err
			}
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
			info = target
		default:
			return nil
		}

		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		files = append(files, File{
			Name: filepath.ToSlash(rel),
			Path: filepath.Join(root, rel),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}
	return files, nil
}

// TotalSize sums the sizes of files.
func TotalSize(files []File) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
