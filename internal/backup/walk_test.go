package backup

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate_Excludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Preferences.xml":                  "p",
		"Logs/PMS.log":                     "l",
		"Crash Reports/1.dmp":              "c",
		"Plug-in Support/Logs/nested.log":  "n",
		"Plug-in Support/Databases/lib.db": "d",
		"Metadata/Logs":                    "file named like a dir",
		"Updates/1.2.3/installer.exe":      "u",
	})

	files, err := Enumerate(root, NewExcludeSet("Diagnostics", "Crash Reports", "Updates", "Logs"))
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
		for _, part := range strings.Split(f.Name, "/") {
			assert.NotContains(t, []string{"Logs", "Crash Reports", "Updates", "Diagnostics"}, part, "excluded component in %s", f.Name)
		}
	}
	sort.Strings(names)
	assert.Equal(t, []string{"Plug-in Support/Databases/lib.db", "Preferences.xml"}, names)
}

func TestEnumerate_DoesNotDescendExcluded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.txt":      "k",
		"Cache/inner/x": "x",
	})
	locked := filepath.Join(root, "Cache", "inner")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	files, err := Enumerate(root, NewExcludeSet("Cache"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.txt", files[0].Name)
}

func TestEnumerate_RelativeNamesAndSizes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/b/c.txt": "hello",
		"d.txt":     "hi",
	})

	files, err := Enumerate(root, nil)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]File{}
	for _, f := range files {
		byName[f.Name] = f
	}
	assert.Equal(t, int64(5), byName["a/b/c.txt"].Size)
	assert.Equal(t, filepath.Join(root, "a", "b", "c.txt"), byName["a/b/c.txt"].Path)
	assert.Equal(t, int64(7), TotalSize(files))
}

func symlinkOrSkip(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestEnumerate_SymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	writeTree(t, target, map[string]string{
		"Preferences.xml":                  "p",
		"Plug-in Support/Databases/lib.db": "db",
	})
	link := filepath.Join(t.TempDir(), "Plex Media Server")
	symlinkOrSkip(t, target, link)

	files, err := Enumerate(link, nil)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]File{}
	for _, f := range files {
		byName[f.Name] = f
	}
	require.Contains(t, byName, "Plug-in Support/Databases/lib.db")
	assert.Equal(t, filepath.Join(link, "Plug-in Support", "Databases", "lib.db"), byName["Plug-in Support/Databases/lib.db"].Path)
	assert.Equal(t, int64(2), byName["Plug-in Support/Databases/lib.db"].Size)
}

func TestEnumerate_SymlinksInsideTree(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{
		"poster.jpg":  "jpeg-bytes",
		"dir/inner.x": "x",
	})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"Preferences.xml": "p"})
	symlinkOrSkip(t, filepath.Join(outside, "poster.jpg"), filepath.Join(root, "poster.jpg"))
	symlinkOrSkip(t, filepath.Join(outside, "dir"), filepath.Join(root, "linked-dir"))
	symlinkOrSkip(t, filepath.Join(outside, "missing"), filepath.Join(root, "dangling"))

	files, err := Enumerate(root, nil)
	require.NoError(t, err)

	sizes := map[string]int64{}
	for _, f := range files {
		sizes[f.Name] = f.Size
	}
	assert.Equal(t, map[string]int64{"Preferences.xml": 1, "poster.jpg": 10}, sizes)
}

func TestEnumerate_MissingRoot(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestExcludeSet(t *testing.T) {
	set := NewExcludeSet("Logs", "", "Cache", "Logs")

	assert.True(t, set.Has("Logs"))
	assert.False(t, set.Has("logs"))
	assert.False(t, set.Has(""))
	assert.Equal(t, []string{"Cache", "Logs"}, set.Names())
}
