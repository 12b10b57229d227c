// Package registry wraps the Windows registry subtree that holds Plex Media
// Server settings: install path lookup plus export and import of the subtree.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultKey is the registry subtree Plex Media Server keeps its settings under.
const DefaultKey = `HKEY_CURRENT_USER\SOFTWARE\Plex, Inc.\Plex Media Server`

// InstallFolderValue is the value name holding the install directory.
const InstallFolderValue = "InstallFolder"

// ErrInstallPathNotFound is returned when the install directory cannot be resolved.
var ErrInstallPathNotFound = errors.New("plex install path not found in registry")

// Store exports and imports a registry subtree through files.
type Store interface {
	Export(ctx context.Context, file string) error
	Import(ctx context.Context, file string) error
}

// InstallPathResolver resolves the application's install directory.
type InstallPathResolver interface {
	InstallPath(ctx context.Context) (string, error)
}

// RegStore drives the reg.exe command line tool for one registry key.
type RegStore struct {
	binary string
	key    string
	logger zerolog.Logger
}

// NewRegStore creates a new RegStore for key.
func NewRegStore(key string, logger zerolog.Logger) *RegStore {
	return NewRegStoreWithBinary("reg", key, logger)
}

// NewRegStoreWithBinary creates a new RegStore with a custom reg binary path.
func NewRegStoreWithBinary(binary, key string, logger zerolog.Logger) *RegStore {
	if key == "" {
		key = DefaultKey
	}
	return &RegStore{
		binary: binary,
		key:    key,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Key returns the registry key this store operates on.
func (s *RegStore) Key() string {
	return s.key
}

// Export writes the subtree to file in .reg format, replacing any existing file.
func (s *RegStore) Export(ctx context.Context, file string) error {
	s.logger.Debug().Str("key", s.key).Str("file", file).Msg("exporting registry key")

	if _, err := s.run(ctx, "export", s.key, file, "/y"); err != nil {
		return fmt.Errorf("export registry key: %w", err)
	}
	return nil
}

// Import merges the .reg file into the registry, overwriting existing values.
func (s *RegStore) Import(ctx context.Context, file string) error {
	s.logger.Debug().Str("file", file).Msg("importing registry file")

	if _, err := s.run(ctx, "import", file); err != nil {
		return fmt.Errorf("import registry file: %w", err)
	}
	return nil
}

// InstallPath returns the Plex install directory recorded in the registry.
func (s *RegStore) InstallPath(ctx context.Context) (string, error) {
	path, err := s.lookupInstallPath(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("plex install path not found in registry")
		return "", err
	}
	return path, nil
}

// queryInstallPath resolves the install path through "reg query".
func (s *RegStore) queryInstallPath(ctx context.Context) (string, error) {
	output, err := s.run(ctx, "query", s.key, "/v", InstallFolderValue)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallPathNotFound, err)
	}

	path, ok := parseQueryValue(output, InstallFolderValue)
	if !ok || path == "" {
		return "", ErrInstallPathNotFound
	}
	return path, nil
}

func (s *RegStore) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug().
		Str("command", s.binary).
		Strs("args", args).
		Msg("executing reg command")

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg))
	}

	return stdout.Bytes(), nil
}

// parseQueryValue extracts a value's data from "reg query /v" output:
//
//	HKEY_CURRENT_USER\SOFTWARE\Plex, Inc.\Plex Media Server
//	    InstallFolder    REG_SZ    C:\Program Files\Plex\Plex Media Server
func parseQueryValue(output []byte, name string) (string, bool) {
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= len(name) || !strings.EqualFold(line[:len(name)], name) {
			continue
		}

		rest := strings.TrimLeft(line[len(name):], " \t")
		if rest == line[len(name):] {
			// Value name was only a prefix of a longer name.
			continue
		}
		i := strings.IndexAny(rest, " \t")
		if i < 0 || !strings.HasPrefix(rest[:i], "REG_") {
			continue
		}
		return strings.TrimSpace(rest[i:]), true
	}
	return "", false
}

// splitKey separates the root hive from the subkey path.
func splitKey(key string) (root, path string) {
	root, path, _ = strings.Cut(key, `\`)
	return strings.ToUpper(root), path
}
