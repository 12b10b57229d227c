package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MacJediWizard/plexbackup/internal/config"
	"github.com/MacJediWizard/plexbackup/internal/registry"
)

type stubResolver struct {
	path string
	err  error
}

func (s stubResolver) InstallPath(ctx context.Context) (string, error) {
	return s.path, s.err
}

func findCheck(checks []CheckResult, name string) *CheckResult {
	for i := range checks {
		if checks[i].Name == name {
			return &checks[i]
		}
	}
	return nil
}

func newTestRunner(cfg *config.Config, resolver registry.InstallPathResolver, found map[string]bool) *Runner {
	r := NewRunner(cfg, resolver, "test-version")
	r.lookPath = func(name string) (string, error) {
		if found[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
	return r
}

func TestRunner_Run(t *testing.T) {
	cfg := &config.Config{
		DataDir:       t.TempDir(),
		BackupDir:     t.TempDir(),
		ArchiveFormat: "tar.gz",
		RegistryTool:  "reg",
	}
	resolver := stubResolver{path: `C:\Program Files\Plex\Plex Media Server`}

	result := newTestRunner(cfg, resolver, map[string]bool{"tar": true, "reg": true}).Run(context.Background())

	if result.Version != "test-version" {
		t.Errorf("expected version 'test-version', got %s", result.Version)
	}
	if result.Summary.Total != 6 {
		t.Errorf("expected 6 checks, got %d", result.Summary.Total)
	}

	for _, name := range []string{"data_dir", "install_path", "backup_dir", "archive_tool", "registry_tool"} {
		check := findCheck(result.Checks, name)
		if check == nil {
			t.Errorf("expected %s check", name)
			continue
		}
		if check.Status != StatusPass {
			t.Errorf("expected %s to pass, got %s: %s", name, check.Status, check.Message)
		}
	}

	entries, err := os.ReadDir(cfg.BackupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("backup_dir check left files behind: %v", entries)
	}
}

func TestRunner_Failures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	cfg := &config.Config{
		DataDir:       missing,
		BackupDir:     missing,
		ArchiveFormat: "rar",
		RegistryTool:  "reg",
	}
	resolver := stubResolver{err: registry.ErrInstallPathNotFound}

	result := newTestRunner(cfg, resolver, nil).Run(context.Background())

	want := map[string]CheckStatus{
		"data_dir":      StatusFail,
		"install_path":  StatusFail,
		"backup_dir":    StatusWarn,
		"archive_tool":  StatusFail,
		"registry_tool": StatusFail,
	}
	for name, status := range want {
		check := findCheck(result.Checks, name)
		if check == nil {
			t.Errorf("expected %s check", name)
			continue
		}
		if check.Status != status {
			t.Errorf("expected %s to be %s, got %s: %s", name, status, check.Status, check.Message)
		}
	}
	if result.Summary.AllPass {
		t.Error("expected AllPass to be false")
	}

	tool := findCheck(result.Checks, "archive_tool")
	if tool != nil && !strings.Contains(tool.Message, "rar") {
		t.Errorf("archive_tool message should name the tool, got %q", tool.Message)
	}
}

func TestRunner_BuiltInFormatSkipsTool(t *testing.T) {
	cfg := &config.Config{
		DataDir:       t.TempDir(),
		BackupDir:     t.TempDir(),
		ArchiveFormat: "7z",
		InstallPath:   "/opt/plex",
	}

	result := newTestRunner(cfg, nil, nil).Run(context.Background())

	if c := findCheck(result.Checks, "archive_tool"); c == nil || c.Status != StatusSkip {
		t.Errorf("expected archive_tool to be skipped, got %+v", c)
	}
	if c := findCheck(result.Checks, "install_path"); c == nil || c.Status != StatusPass {
		t.Errorf("expected configured install_path to pass, got %+v", c)
	}
}

func TestRunner_MinFreeSpace(t *testing.T) {
	cfg := &config.Config{
		DataDir:        t.TempDir(),
		BackupDir:      t.TempDir(),
		ArchiveFormat:  "zip",
		MinFreeSpaceMB: 1 << 40,
	}

	result := newTestRunner(cfg, nil, nil).Run(context.Background())

	if c := findCheck(result.Checks, "disk_space"); c == nil || c.Status != StatusFail {
		t.Errorf("expected disk_space to fail below the minimum, got %+v", c)
	}
}

func TestDiskSpace_MissingPathUsesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not", "yet", "created")

	details, err := DiskSpace(path)
	if err != nil {
		t.Fatalf("DiskSpace() error = %v", err)
	}
	if details.Path != path {
		t.Errorf("Path = %q, want %q", details.Path, path)
	}
	if details.TotalBytes <= 0 {
		t.Errorf("TotalBytes = %d, want positive", details.TotalBytes)
	}
	if details.FreeBytes > details.TotalBytes {
		t.Errorf("FreeBytes %d exceeds TotalBytes %d", details.FreeBytes, details.TotalBytes)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiagnosticsResult_ToJSON(t *testing.T) {
	result := &DiagnosticsResult{
		Version:  "1.0.0",
		Hostname: "test-host",
		Checks: []CheckResult{
			{Name: "data_dir", Status: StatusPass, Message: "ok"},
		},
		Summary: Summary{Total: 1, Passed: 1, AllPass: true},
	}

	data, err := result.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"version": "1.0.0"`, `"data_dir"`, `"all_pass": true`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected JSON to contain %s", want)
		}
	}
}
