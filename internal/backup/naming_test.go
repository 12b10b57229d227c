package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArchiveName(t *testing.T) {
	ts := time.Date(2024, 6, 15, 12, 3, 4, 0, time.UTC)
	if got := ArchiveName(ts, "7z"); got != "plex_backup_20240615120304.7z" {
		t.Errorf("ArchiveName() = %q", got)
	}
}

func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"plex_backup_20240101000000.zip",
		"plex_backup_20240615120000.zip",
		"plex_backup_20231231235959.zip",
		"plex_backup_20240701000000.7z",
		"plex_backup_latest.zip",
		"other_20250101000000.zip",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "plex_backup_20990101000000.zip"), 0755); err != nil {
		t.Fatal(err)
	}

	archives, err := ListArchives(dir, "zip")
	if err != nil {
		t.Fatalf("ListArchives() error: %v", err)
	}

	want := []string{
		"plex_backup_20240615120000.zip",
		"plex_backup_20240101000000.zip",
		"plex_backup_20231231235959.zip",
	}
	if len(archives) != len(want) {
		t.Fatalf("ListArchives() returned %d archives, want %d: %+v", len(archives), len(want), archives)
	}
	for i, a := range archives {
		if a.Name != want[i] {
			t.Errorf("archives[%d] = %q, want %q", i, a.Name, want[i])
		}
		if a.Size != int64(len(a.Name)) {
			t.Errorf("archives[%d].Size = %d", i, a.Size)
		}
	}
	if archives[0].Timestamp.Year() != 2024 || archives[0].Timestamp.Month() != time.June {
		t.Errorf("Timestamp = %v", archives[0].Timestamp)
	}
}

func TestListArchives_MissingDir(t *testing.T) {
	archives, err := ListArchives(filepath.Join(t.TempDir(), "missing"), "zip")
	if err != nil {
		t.Fatalf("ListArchives() error: %v", err)
	}
	if len(archives) != 0 {
		t.Errorf("expected no archives, got %v", archives)
	}
}

func TestSelectLatest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plex_backup_20240101000000.zip", "plex_backup_20240615120000.zip"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := SelectLatest(dir, "zip")
	if err != nil {
		t.Fatalf("SelectLatest() error: %v", err)
	}
	if filepath.Base(got) != "plex_backup_20240615120000.zip" {
		t.Errorf("SelectLatest() = %q", got)
	}

	_, err = SelectLatest(dir, "7z")
	if !errors.Is(err, ErrNoBackupFound) {
		t.Errorf("SelectLatest() error = %v, want ErrNoBackupFound", err)
	}
}
