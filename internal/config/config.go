// Package config provides configuration management for plexbackup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/MacJediWizard/plexbackup/internal/archive"
	"github.com/MacJediWizard/plexbackup/internal/excludes"
	"github.com/MacJediWizard/plexbackup/internal/registry"
)

// ErrConfig is returned for a missing, malformed or invalid configuration.
var ErrConfig = errors.New("configuration error")

// DefaultConfigName is the file looked up next to the executable.
const DefaultConfigName = "config.yaml"

const (
	defaultArchiveFormat    = "zip"
	defaultCompressionLevel = 5
	defaultLogLevel         = "info"
	defaultLogMaxSizeMB     = 10
	defaultLogMaxBackups    = 5
	defaultLogMaxAgeDays    = 30
)

// DefaultExcludeFolders are the basenames excluded when exclude_folders is unset.
var DefaultExcludeFolders = []string{"Diagnostics", "Crash Reports", "Updates", "Logs"}

// ExecutableDir returns the directory holding the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Dir(exe), nil
}

// DefaultConfigPath returns config.yaml next to the executable.
func DefaultConfigPath() (string, error) {
	dir, err := ExecutableDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigName), nil
}

// Config holds the plexbackup configuration.
type Config struct {
	BackupDir        string   `yaml:"backup_dir,omitempty"`
	ExcludeFolders   []string `yaml:"exclude_folders,omitempty"`
	ExcludePresets   []string `yaml:"exclude_presets,omitempty"`
	ArchiveFormat    string   `yaml:"archive_format,omitempty"`
	ArchiveTool      string   `yaml:"archive_tool,omitempty"`
	CompressionLevel *int     `yaml:"compression_level,omitempty"`

	DataDir      string   `yaml:"data_dir,omitempty"`
	InstallPath  string   `yaml:"install_path,omitempty"`
	Services     []string `yaml:"services,omitempty"`
	MainProcess  string   `yaml:"main_process,omitempty"`
	RegistryKey  string   `yaml:"registry_key,omitempty"`
	RegistryTool string   `yaml:"registry_tool,omitempty"`

	LogDir        string `yaml:"log_dir,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb,omitempty"`
	LogMaxBackups int    `yaml:"log_max_backups,omitempty"`
	LogMaxAgeDays int    `yaml:"log_max_age_days,omitempty"`

	MetricsFile    string    `yaml:"metrics_file,omitempty"`
	MinFreeSpaceMB int64     `yaml:"min_free_space_mb,omitempty"`
	Retention      Retention `yaml:"retention,omitempty"`
}

// Retention configures archive pruning after a successful backup. Zero
// values disable a rule; all zero keeps every archive.
type Retention struct {
	KeepLast    int `yaml:"keep_last,omitempty"`
	KeepDaily   int `yaml:"keep_daily,omitempty"`
	KeepWeekly  int `yaml:"keep_weekly,omitempty"`
	KeepMonthly int `yaml:"keep_monthly,omitempty"`
}

// Load reads the configuration from path, applies environment overrides and
// defaults, and validates the result. Every failure wraps ErrConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %w", ErrConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config file: %w", ErrConfig, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(runtime.GOOS); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return Load(path)
}

// applyDefaults fills unset keys with the defaults for goos.
func (c *Config) applyDefaults(goos string) error {
	p, err := platformDefaults(goos)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if c.BackupDir == "" {
		c.BackupDir = p.backupDir
	}
	if c.ExcludeFolders == nil {
		c.ExcludeFolders = append([]string(nil), DefaultExcludeFolders...)
	}
	if c.ArchiveFormat == "" {
		c.ArchiveFormat = defaultArchiveFormat
	}
	if c.CompressionLevel == nil {
		level := defaultCompressionLevel
		c.CompressionLevel = &level
	}
	if c.DataDir == "" {
		c.DataDir = p.dataDir
	}
	if c.Services == nil {
		c.Services = p.services
	}
	if c.MainProcess == "" {
		c.MainProcess = p.mainProcess
	}
	if c.RegistryKey == "" {
		c.RegistryKey = registry.DefaultKey
	}
	if c.RegistryTool == "" {
		c.RegistryTool = "reg"
	}
	if c.LogDir == "" {
		dir, err := ExecutableDir()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		c.LogDir = filepath.Join(dir, "logs")
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = defaultLogMaxSizeMB
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = defaultLogMaxBackups
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = defaultLogMaxAgeDays
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("%w: backup_dir is required", ErrConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrConfig)
	}
	if c.CompressionLevel != nil && (*c.CompressionLevel < 0 || *c.CompressionLevel > 9) {
		return fmt.Errorf("%w: compression_level %d out of range 0-9", ErrConfig, *c.CompressionLevel)
	}
	if _, err := archive.ParseFormat(c.ArchiveFormat); err != nil {
		return fmt.Errorf("%w: archive_format: %w", ErrConfig, err)
	}
	if _, err := excludes.Resolve(c.ExcludePresets); err != nil {
		return fmt.Errorf("%w: exclude_presets: %w", ErrConfig, err)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: log_level: %w", ErrConfig, err)
		}
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0 {
		return fmt.Errorf("%w: log rotation limits must not be negative", ErrConfig)
	}
	if c.MinFreeSpaceMB < 0 {
		return fmt.Errorf("%w: min_free_space_mb must not be negative", ErrConfig)
	}
	r := c.Retention
	if r.KeepLast < 0 || r.KeepDaily < 0 || r.KeepWeekly < 0 || r.KeepMonthly < 0 {
		return fmt.Errorf("%w: retention rules must not be negative", ErrConfig)
	}
	return nil
}

// Format returns the parsed archive format.
func (c *Config) Format() (archive.Format, error) {
	return archive.ParseFormat(c.ArchiveFormat)
}

// Level returns the compression level.
func (c *Config) Level() int {
	if c.CompressionLevel == nil {
		return defaultCompressionLevel
	}
	return *c.CompressionLevel
}

// Excludes returns exclude_folders merged with the patterns of every
// configured preset, without duplicates.
func (c *Config) Excludes() ([]string, error) {
	fromPresets, err := excludes.Resolve(c.ExcludePresets)
	if err != nil {
		return nil, fmt.Errorf("%w: exclude_presets: %w", ErrConfig, err)
	}

	seen := make(map[string]bool, len(c.ExcludeFolders)+len(fromPresets))
	var names []string
	for _, n := range append(append([]string(nil), c.ExcludeFolders...), fromPresets...) {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names, nil
}

// Save writes the configuration to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
