// Package archive provides the archive providers used for Plex backups.
//
// Every provider writes and reads a single container file holding named
// entries. Callers stream data entries through a Writer and read them back
// through a Reader without knowing which container format is in use.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrArchiveCorrupt is returned when a container cannot be read.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrEntryNotFound is returned when a named entry is missing from a container.
	ErrEntryNotFound = errors.New("archive entry not found")

	// ErrUnsupportedFormat is returned for format strings no provider handles.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// Kind identifies the provider variant behind a Format.
type Kind int

const (
	// KindStoreZip compresses each entry independently with deflate.
	KindStoreZip Kind = iota + 1
	// KindSolidArchive compresses the whole archive as one LZMA2 stream.
	KindSolidArchive
	// KindGenericTool delegates to an external archiving utility.
	KindGenericTool
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindStoreZip:
		return "store-zip"
	case KindSolidArchive:
		return "solid"
	case KindGenericTool:
		return "generic-tool"
	default:
		return "unknown"
	}
}

// Format is a configured archive format: the provider variant plus the file
// extension used for archive names.
type Format struct {
	Kind      Kind
	Extension string
}

func (f Format) String() string {
	return f.Extension
}

// toolFormats lists the extensions the GenericTool provider knows how to
// drive, in display order.
var toolFormats = []string{"tar", "tar.gz", "tgz", "tar.bz2", "tbz2", "tar.xz", "txz", "rar", "wim"}

var toolExtensions = func() map[string]bool {
	m := make(map[string]bool, len(toolFormats))
	for _, ext := range toolFormats {
		m[ext] = true
	}
	return m
}()

// ParseFormat resolves a configured format string.
func ParseFormat(s string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	switch {
	case ext == "zip":
		return Format{Kind: KindStoreZip, Extension: ext}, nil
	case ext == "7z":
		return Format{Kind: KindSolidArchive, Extension: ext}, nil
	case toolExtensions[ext]:
		return Format{Kind: KindGenericTool, Extension: ext}, nil
	default:
		return Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// SupportedFormats returns every format string ParseFormat accepts.
func SupportedFormats() []string {
	return append([]string{"zip", "7z"}, toolFormats...)
}

// ProgressFunc is called once per entry processed.
type ProgressFunc func(name string)

// ExtractOptions controls ExtractAll.
type ExtractOptions struct {
	// Skip reports entries that must not be written to the destination.
	Skip func(name string) bool
	// Progress is called after each extracted entry.
	Progress ProgressFunc
}

// Provider creates and opens containers of one format.
type Provider interface {
	// Format returns the format handled by this provider.
	Format() Format

	// Create starts writing a new container at path.
	Create(ctx context.Context, path string) (Writer, error)

	// Open starts reading the container at path.
	Open(ctx context.Context, path string) (Reader, error)
}

// Writer appends entries to a container being built.
type Writer interface {
	// WriteFile adds the file at sourcePath under the entry name.
	WriteFile(name, sourcePath string) error

	// WriteBytes adds an in-memory entry.
	WriteBytes(name string, data []byte) error

	// Close finalizes the container. After Close the container is immutable.
	Close() error

	// Abort discards the partially written container and releases every
	// resource held by the writer.
	Abort() error
}

// Reader reads entries from a finalized container.
type Reader interface {
	// Entries returns the names of all file entries.
	Entries() []string

	// ExtractAll writes entries under destDir, overwriting existing files.
	ExtractAll(destDir string, opts ExtractOptions) error

	// ReadEntry returns the content of a single entry.
	ReadEntry(name string) ([]byte, error)

	// Close releases the container.
	Close() error
}

// Options configures a provider.
type Options struct {
	// Level is the compression level on a 0-9 scale.
	Level int

	// ToolBinary overrides the external utility used by the GenericTool provider.
	ToolBinary string

	// Concurrency bounds parallel staging copies for the GenericTool provider.
	Concurrency int

	Logger zerolog.Logger
}

// NewProvider returns the provider for the given format.
func NewProvider(f Format, opts Options) (Provider, error) {
	if opts.Level < 0 || opts.Level > 9 {
		return nil, fmt.Errorf("compression level %d out of range 0-9", opts.Level)
	}

	switch f.Kind {
	case KindStoreZip:
		return NewZipProvider(opts), nil
	case KindSolidArchive:
		return NewSolidProvider(opts), nil
	case KindGenericTool:
		return NewToolProvider(f.Extension, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f.Extension)
	}
}
