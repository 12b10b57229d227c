package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// EntryName is the archive entry that carries the exported registry subtree.
const EntryName = "plex_registry_backup.reg"

// Capsule moves the registry subtree in and out of a backup archive as an
// opaque byte stream. Export and import go through a scratch file that is
// removed on every exit path.
type Capsule struct {
	store  Store
	logger zerolog.Logger
}

// NewCapsule creates a new Capsule backed by store.
func NewCapsule(store Store, logger zerolog.Logger) *Capsule {
	return &Capsule{
		store:  store,
		logger: logger.With().Str("component", "registry_capsule").Logger(),
	}
}

// Export serializes the registry subtree.
func (c *Capsule) Export(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "plexbackup-registry-*")
	if err != nil {
		return nil, fmt.Errorf("create registry scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, EntryName)
	if err := c.store.Export(ctx, file); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read registry export: %w", err)
	}

	c.logger.Info().Int("bytes", len(data)).Msg("registry exported")
	return data, nil
}

// Import restores the registry subtree from a previous Export.
func (c *Capsule) Import(ctx context.Context, data []byte) error {
	dir, err := os.MkdirTemp("", "plexbackup-registry-*")
	if err != nil {
		return fmt.Errorf("create registry scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, EntryName)
	if err := os.WriteFile(file, data, 0600); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}

	if err := c.store.Import(ctx, file); err != nil {
		return err
	}

	c.logger.Info().Int("bytes", len(data)).Msg("registry imported")
	return nil
}
