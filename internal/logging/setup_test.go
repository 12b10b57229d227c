package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/plexbackup/internal/config"
)

func testConfig(dir, level string) *config.Config {
	return &config.Config{
		LogDir:        dir,
		LogLevel:      level,
		LogMaxSizeMB:  1,
		LogMaxBackups: 2,
		LogMaxAgeDays: 3,
	}
}

func TestSetup_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closer, err := Setup(testConfig(dir, "info"), false, nil)
	require.NoError(t, err)

	logger.Info().Str("job_id", "abc").Msg("backup started")
	logger.Debug().Msg("hidden at info")
	require.NoError(t, closer.Close())

	assert.DirExists(t, dir)
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"backup started"`)
	assert.Contains(t, string(data), `"job_id":"abc"`)
	assert.NotContains(t, string(data), "hidden at info")
}

func TestSetup_VerboseConsole(t *testing.T) {
	var console bytes.Buffer

	logger, closer, err := Setup(testConfig(t.TempDir(), "warn"), true, &console)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	logger.Debug().Msg("stopping services")
	assert.Contains(t, console.String(), "stopping services")
}

func TestSetup_InvalidLevelFallsBack(t *testing.T) {
	logger, closer, err := Setup(testConfig(t.TempDir(), "chatty"), false, nil)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestSetup_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, _, err := Setup(testConfig(filepath.Join(file, "logs"), "info"), false, nil)
	assert.Error(t, err)
}
