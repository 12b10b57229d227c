// Package diagnostics provides preflight checks for plexbackup: Plex
// locations, the backup root, free space and the external tools a run needs.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/MacJediWizard/plexbackup/internal/archive"
	"github.com/MacJediWizard/plexbackup/internal/config"
	"github.com/MacJediWizard/plexbackup/internal/registry"
)

// CheckStatus represents the status of a diagnostic check.
type CheckStatus string

const (
	// StatusPass indicates the check passed.
	StatusPass CheckStatus = "pass"
	// StatusFail indicates the check failed.
	StatusFail CheckStatus = "fail"
	// StatusWarn indicates the check passed with warnings.
	StatusWarn CheckStatus = "warn"
	// StatusSkip indicates the check was skipped.
	StatusSkip CheckStatus = "skip"
)

// CheckResult represents the result of a single diagnostic check.
type CheckResult struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Details any         `json:"details,omitempty"`
}

// DiagnosticsResult contains the complete diagnostics output.
type DiagnosticsResult struct {
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version"`
	Hostname  string        `json:"hostname"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	Checks    []CheckResult `json:"checks"`
	Summary   Summary       `json:"summary"`
}

// Summary provides a quick overview of the diagnostics results.
type Summary struct {
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Warned  int  `json:"warned"`
	Skipped int  `json:"skipped"`
	AllPass bool `json:"all_pass"`
}

// DiskSpaceDetails contains disk space information.
type DiskSpaceDetails struct {
	Path       string  `json:"path"`
	TotalBytes int64   `json:"total_bytes"`
	FreeBytes  int64   `json:"free_bytes"`
	UsedBytes  int64   `json:"used_bytes"`
	UsedPct    float64 `json:"used_percent"`
}

// ToolDetails describes an external binary.
type ToolDetails struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Runner runs diagnostic checks.
type Runner struct {
	cfg      *config.Config
	resolver registry.InstallPathResolver
	version  string
	lookPath func(string) (string, error)
}

// NewRunner creates a new diagnostics runner. resolver is only consulted
// when the configuration does not pin install_path.
func NewRunner(cfg *config.Config, resolver registry.InstallPathResolver, version string) *Runner {
	return &Runner{
		cfg:      cfg,
		resolver: resolver,
		version:  version,
		lookPath: exec.LookPath,
	}
}

// Run executes all diagnostic checks and returns the result.
func (r *Runner) Run(ctx context.Context) *DiagnosticsResult {
	hostname, _ := os.Hostname()

	result := &DiagnosticsResult{
		Timestamp: time.Now().UTC(),
		Version:   r.version,
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Checks:    make([]CheckResult, 0),
	}

	result.Checks = append(result.Checks, r.checkDataDir(ctx))
	result.Checks = append(result.Checks, r.checkInstallPath(ctx))
	result.Checks = append(result.Checks, r.checkBackupDir(ctx))
	result.Checks = append(result.Checks, r.checkDiskSpace(ctx))
	result.Checks = append(result.Checks, r.checkArchiveTool(ctx))
	result.Checks = append(result.Checks, r.checkRegistryTool(ctx))

	for _, check := range result.Checks {
		result.Summary.Total++
		switch check.Status {
		case StatusPass:
			result.Summary.Passed++
		case StatusFail:
			result.Summary.Failed++
		case StatusWarn:
			result.Summary.Warned++
		case StatusSkip:
			result.Summary.Skipped++
		}
	}
	result.Summary.AllPass = result.Summary.Failed == 0

	return result
}

// checkDataDir verifies the Plex data directory exists.
func (r *Runner) checkDataDir(ctx context.Context) CheckResult {
	check := CheckResult{Name: "data_dir", Details: map[string]any{"path": r.cfg.DataDir}}

	info, err := os.Stat(r.cfg.DataDir)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Plex data directory not accessible: %v", err)
		return check
	}
	if !info.IsDir() {
		check.Status = StatusFail
		check.Message = "Plex data path exists but is not a directory"
		return check
	}

	check.Status = StatusPass
	check.Message = fmt.Sprintf("Plex data directory found at %s", r.cfg.DataDir)
	return check
}

// checkInstallPath verifies the Plex install directory can be resolved.
func (r *Runner) checkInstallPath(ctx context.Context) CheckResult {
	check := CheckResult{Name: "install_path"}

	if r.cfg.InstallPath != "" {
		check.Status = StatusPass
		check.Message = fmt.Sprintf("Install path configured: %s", r.cfg.InstallPath)
		return check
	}
	if r.resolver == nil {
		check.Status = StatusSkip
		check.Message = "No install path resolver available"
		return check
	}

	path, err := r.resolver.InstallPath(ctx)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Install path not resolvable: %v", err)
		return check
	}

	check.Status = StatusPass
	check.Message = fmt.Sprintf("Plex installed at %s", path)
	check.Details = map[string]any{"path": path}
	return check
}

// checkBackupDir verifies archives can be written to the backup root.
func (r *Runner) checkBackupDir(ctx context.Context) CheckResult {
	check := CheckResult{Name: "backup_dir", Details: map[string]any{"path": r.cfg.BackupDir}}

	info, err := os.Stat(r.cfg.BackupDir)
	if os.IsNotExist(err) {
		check.Status = StatusWarn
		check.Message = "Backup directory does not exist yet and will be created on first backup"
		return check
	}
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Failed to check backup directory: %v", err)
		return check
	}
	if !info.IsDir() {
		check.Status = StatusFail
		check.Message = "Backup path exists but is not a directory"
		return check
	}

	testFile := filepath.Join(r.cfg.BackupDir, ".plexbackup_write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Cannot write to backup directory: %v", err)
		return check
	}
	os.Remove(testFile)

	check.Status = StatusPass
	check.Message = "Backup directory is writable"
	return check
}

// checkDiskSpace verifies adequate disk space is available at the backup root.
func (r *Runner) checkDiskSpace(ctx context.Context) CheckResult {
	check := CheckResult{
		Name: "disk_space",
	}

	details, err := DiskSpace(r.cfg.BackupDir)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Failed to check disk space: %v", err)
		return check
	}
	check.Details = details

	minFree := r.cfg.MinFreeSpaceMB * 1024 * 1024
	if minFree > 0 && details.FreeBytes < minFree {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Only %s free, below the configured minimum of %s", FormatBytes(details.FreeBytes), FormatBytes(minFree))
		return check
	}

	// Warning if > 90% used, fail if > 95% used
	if details.UsedPct >= 95 {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Critically low disk space: %.1f%% used", details.UsedPct)
		return check
	}
	if details.UsedPct >= 90 {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("Low disk space warning: %.1f%% used", details.UsedPct)
		return check
	}

	check.Status = StatusPass
	check.Message = fmt.Sprintf("Disk space OK: %.1f%% used, %s free", details.UsedPct, FormatBytes(details.FreeBytes))
	return check
}

// checkArchiveTool verifies the external archiver is installed when the
// configured format needs one.
func (r *Runner) checkArchiveTool(ctx context.Context) CheckResult {
	check := CheckResult{Name: "archive_tool"}

	format, err := r.cfg.Format()
	if err != nil {
		check.Status = StatusFail
		check.Message = err.Error()
		return check
	}
	if format.Kind != archive.KindGenericTool {
		check.Status = StatusSkip
		check.Message = fmt.Sprintf("Format %s is built in", format)
		return check
	}

	p, err := archive.NewToolProvider(format.Extension, archive.Options{ToolBinary: r.cfg.ArchiveTool})
	if err != nil {
		check.Status = StatusFail
		check.Message = err.Error()
		return check
	}
	return r.checkBinary(check, p.Binary())
}

// checkRegistryTool verifies the registry export/import utility is installed.
func (r *Runner) checkRegistryTool(ctx context.Context) CheckResult {
	return r.checkBinary(CheckResult{Name: "registry_tool"}, r.cfg.RegistryTool)
}

func (r *Runner) checkBinary(check CheckResult, name string) CheckResult {
	details := ToolDetails{Name: name}

	path, err := r.lookPath(name)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("%s not found in PATH", name)
		check.Details = details
		return check
	}

	details.Path = path
	check.Status = StatusPass
	check.Message = fmt.Sprintf("%s available at %s", name, path)
	check.Details = details
	return check
}

// DiskSpace returns disk space information for the filesystem holding path.
// A path that does not exist yet is measured at its nearest existing parent.
func DiskSpace(path string) (*DiskSpaceDetails, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	details, err := getDiskSpace(dir)
	if err != nil {
		return nil, err
	}
	details.Path = path
	return details, nil
}

// getDiskSpace is defined in platform-specific files:
// diskspace_unix.go (linux, darwin) and diskspace_windows.go

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// ToJSON returns the diagnostics result as JSON.
func (r *DiagnosticsResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func newDiskSpaceDetails(path string, total, free int64) *DiskSpaceDetails {
	used := total - free
	var usedPct float64
	if total > 0 {
		usedPct = float64(used) / float64(total) * 100
	}
	return &DiskSpaceDetails{
		Path:       path,
		TotalBytes: total,
		FreeBytes:  free,
		UsedBytes:  used,
		UsedPct:    usedPct,
	}
}
