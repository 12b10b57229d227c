package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/plexbackup/internal/archive"
	"github.com/MacJediWizard/plexbackup/internal/backup"
	"github.com/MacJediWizard/plexbackup/internal/config"
	"github.com/MacJediWizard/plexbackup/internal/registry"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", fmt.Errorf("%w: bad yaml", config.ErrConfig), exitConfig},
		{"install path", registry.ErrInstallPathNotFound, exitInstallPath},
		{"no backup", &backup.StepError{Step: backup.StepSelect, Err: backup.ErrNoBackupFound}, exitNoBackup},
		{"archive", &backup.StepError{Step: backup.StepExtract, Err: archive.ErrArchiveCorrupt}, exitArchiveStep},
		{"generic", errors.New("boom"), exitGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestConfigInitThenList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	root := newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	require.NoError(t, root.Execute())
	assert.FileExists(t, path)

	root = newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	assert.Error(t, root.Execute(), "init must not overwrite without --force")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	backupDir := filepath.Join(dir, "backups")
	cfg.BackupDir = backupDir
	require.NoError(t, cfg.Save(path))
	require.NoError(t, os.MkdirAll(backupDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, "plex_backup_20240101000000.zip"), []byte("x"), 0644))

	root = newRootCmd()
	root.SetArgs([]string{"list", "--config", path})
	assert.NoError(t, root.Execute())
}

func TestRestoreWithoutArchives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &config.Config{
		BackupDir:   filepath.Join(dir, "backups"),
		DataDir:     filepath.Join(dir, "data"),
		InstallPath: filepath.Join(dir, "plex"),
		Services:    []string{},
		LogDir:      filepath.Join(dir, "logs"),
	}
	require.NoError(t, cfg.Save(path))

	root := newRootCmd()
	root.SetArgs([]string{"restore", "--config", path, "--no-progress"})
	err := root.Execute()

	require.Error(t, err)
	assert.ErrorIs(t, err, backup.ErrNoBackupFound)
	assert.Equal(t, exitNoBackup, exitCode(err))
}

func TestPrintSummary_ArchiveLine(t *testing.T) {
	path := filepath.Join("backups", "plex_backup_20240101000000.zip")
	failure := &backup.StepError{Step: backup.StepArchive, Err: errors.New("disk full")}

	tests := []struct {
		name   string
		mode   backup.Mode
		runErr error
		want   string
	}{
		{"backup succeeded", backup.ModeBackup, nil, "Archive:  " + path + "\n"},
		{"backup failed", backup.ModeBackup, failure, "Archive:  " + path + " (discarded)\n"},
		{"restore failed", backup.ModeRestore, failure, "Archive:  " + path + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, &backup.Summary{Mode: tt.mode, ArchivePath: path, Duration: time.Second}, tt.runErr)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
