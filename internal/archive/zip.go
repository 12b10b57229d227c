package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// ZipProvider writes zip containers with per-entry deflate at a fixed level.
type ZipProvider struct {
	level  int
	logger zerolog.Logger
}

// NewZipProvider creates a new ZipProvider.
func NewZipProvider(opts Options) *ZipProvider {
	return &ZipProvider{
		level:  opts.Level,
		logger: opts.Logger.With().Str("component", "zip_archive").Logger(),
	}
}

// Format returns the zip format.
func (p *ZipProvider) Format() Format {
	return Format{Kind: KindStoreZip, Extension: "zip"}
}

// Create starts a new zip container at path.
func (p *ZipProvider) Create(ctx context.Context, path string) (Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	level := p.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	p.logger.Debug().Str("path", path).Int("level", level).Msg("zip archive opened for writing")

	return &zipWriter{path: path, file: f, zw: zw}, nil
}

// Open opens an existing zip container.
func (p *ZipProvider) Open(ctx context.Context, path string) (Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, path, err)
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}

	p.logger.Debug().Str("path", path).Int("entries", len(rc.File)).Msg("zip archive opened for reading")

	return &zipReader{rc: rc}, nil
}

type zipWriter struct {
	path string
	file *os.File
	zw   *zip.Writer
}

func (w *zipWriter) WriteFile(name, sourcePath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", sourcePath, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

func (w *zipWriter) WriteBytes(name string, data []byte) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	hdr.SetMode(0644)

	dst, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

func (w *zipWriter) Close() error {
	if err := w.zw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func (w *zipWriter) Abort() error {
	w.zw.Close()
	w.file.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial archive: %w", err)
	}
	return nil
}

type zipReader struct {
	rc *zip.ReadCloser
}

func (r *zipReader) Entries() []string {
	names := make([]string, 0, len(r.rc.File))
	for _, f := range r.rc.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

func (r *zipReader) ExtractAll(destDir string, opts ExtractOptions) error {
	for _, f := range r.rc.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if opts.Skip != nil && opts.Skip(f.Name) {
			continue
		}

		dst, err := entryPath(destDir, f.Name)
		if err != nil {
			return err
		}
		if err := extractZipFile(f, dst); err != nil {
			return err
		}
		if opts.Progress != nil {
			opts.Progress(f.Name)
		}
	}
	return nil
}

func extractZipFile(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %s: %v", ErrArchiveCorrupt, f.Name, err)
	}
	defer src.Close()

	if err := writeFile(dst, src, f.Mode()); err != nil {
		var corrupt flate.CorruptInputError
		if errors.Is(err, zip.ErrChecksum) || errors.As(err, &corrupt) {
			return fmt.Errorf("%w: entry %s: %v", ErrArchiveCorrupt, f.Name, err)
		}
		return err
	}
	return nil
}

func (r *zipReader) ReadEntry(name string) ([]byte, error) {
	for _, f := range r.rc.File {
		if f.Name != name {
			continue
		}
		src, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open entry %s: %v", ErrArchiveCorrupt, name, err)
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("%w: read entry %s: %v", ErrArchiveCorrupt, name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

func (r *zipReader) Close() error {
	return r.rc.Close()
}
