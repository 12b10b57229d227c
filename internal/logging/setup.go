// Package logging sets up the rotated run log shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MacJediWizard/plexbackup/internal/config"
)

// LogFileName is the active log file inside the log directory.
const LogFileName = "plexbackup.log"

// Setup creates the log directory and returns a logger writing to a rotated
// file there. With verbose set, records are also written to console in
// human-readable form. The returned io.Closer releases the file.
func Setup(cfg *config.Config, verbose bool, console io.Writer) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create logs directory: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	logFile := filepath.Join(cfg.LogDir, LogFileName)
	fileWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	var out io.Writer = fileWriter
	if verbose && console != nil {
		out = io.MultiWriter(zerolog.ConsoleWriter{Out: console}, fileWriter)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	logger.Debug().
		Str("log_file", logFile).
		Str("level", level.String()).
		Msg("file logging initialized")

	return logger, fileWriter, nil
}
