package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override the configuration file.
const (
	EnvBackupDir        = "PLEXBACKUP_BACKUP_DIR"
	EnvDataDir          = "PLEXBACKUP_DATA_DIR"
	EnvInstallPath      = "PLEXBACKUP_INSTALL_PATH"
	EnvArchiveFormat    = "PLEXBACKUP_ARCHIVE_FORMAT"
	EnvCompressionLevel = "PLEXBACKUP_COMPRESSION_LEVEL"
	EnvLogLevel         = "PLEXBACKUP_LOG_LEVEL"
)

// applyEnv overrides file values with any set PLEXBACKUP_* variables.
func (c *Config) applyEnv() error {
	setString(&c.BackupDir, EnvBackupDir)
	setString(&c.DataDir, EnvDataDir)
	setString(&c.InstallPath, EnvInstallPath)
	setString(&c.ArchiveFormat, EnvArchiveFormat)
	setString(&c.LogLevel, EnvLogLevel)

	level, ok, err := getEnvInt(EnvCompressionLevel)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfig, EnvCompressionLevel, err)
	}
	if ok {
		c.CompressionLevel = &level
	}
	return nil
}

func setString(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

// getEnvInt reads an integer from an environment variable. ok is false when
// the variable is unset.
func getEnvInt(key string) (n int, ok bool, err error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
