package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MacJediWizard/plexbackup/internal/archive"
	"github.com/MacJediWizard/plexbackup/internal/services"
)

// Mode selects the direction of a run.
type Mode string

const (
	ModeBackup  Mode = "backup"
	ModeRestore Mode = "restore"
)

// ParseMode parses a mode argument.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBackup, ModeRestore:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want backup or restore)", s)
	}
}

// Job is one backup or restore invocation. It is built once from the merged
// configuration and resolved paths and is not modified by a run.
type Job struct {
	ID               string
	Mode             Mode
	DataDir          string
	InstallPath      string
	BackupRoot       string
	Format           archive.Format
	CompressionLevel int
	Excludes         ExcludeSet
	Services         services.ServiceSet
	Timestamp        time.Time
}

// ArchivePath returns the path of the archive a backup of this job writes.
func (j *Job) ArchivePath() string {
	return filepath.Join(j.BackupRoot, ArchiveName(j.Timestamp, j.Format.Extension))
}

// ServiceController stops and starts the application's services. Failures
// are reported per service and never returned as errors.
type ServiceController interface {
	StopAll(ctx context.Context, set services.ServiceSet) []services.Outcome
	StartAll(ctx context.Context, set services.ServiceSet) []services.Outcome
}

// StateCapsule exports and imports the auxiliary registry state.
type StateCapsule interface {
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) error
}

// ProviderFunc returns the archive provider for a format and compression level.
type ProviderFunc func(f archive.Format, level int) (archive.Provider, error)

// Summary reports what a run did. It is filled in as far as the run got,
// so it is meaningful on failure too.
type Summary struct {
	JobID       string
	Mode        Mode
	ArchivePath string
	Files       int
	Bytes       int64
	ArchiveSize int64
	Stopped     []services.Outcome
	Started     []services.Outcome
	Duration    time.Duration
}

// ServiceFailures counts the failed stop and start actions of the run.
func (s *Summary) ServiceFailures() int {
	return services.Failures(s.Stopped) + services.Failures(s.Started)
}
