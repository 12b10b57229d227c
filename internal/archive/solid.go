package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz"
)

// presetDictCap maps the 0-9 preset scale to LZMA2 dictionary sizes,
// following the xz utility presets.
var presetDictCap = [10]int{
	256 << 10,
	1 << 20,
	2 << 20,
	4 << 20,
	4 << 20,
	8 << 20,
	8 << 20,
	16 << 20,
	32 << 20,
	64 << 20,
}

// SolidProvider writes a single LZMA2 stream holding a tar of all entries.
// The dictionary spans entries, so similar files compress against each
// other. Progress on write reports hand-off to the compressor, not durable
// storage.
type SolidProvider struct {
	level  int
	logger zerolog.Logger
}

// NewSolidProvider creates a new SolidProvider.
func NewSolidProvider(opts Options) *SolidProvider {
	return &SolidProvider{
		level:  opts.Level,
		logger: opts.Logger.With().Str("component", "solid_archive").Logger(),
	}
}

// Format returns the solid format.
func (p *SolidProvider) Format() Format {
	return Format{Kind: KindSolidArchive, Extension: "7z"}
}

// Create starts a new solid container at path.
func (p *SolidProvider) Create(ctx context.Context, path string) (Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	buf := bufio.NewWriterSize(f, 1<<20)
	cfg := xz.WriterConfig{DictCap: presetDictCap[p.level]}
	xw, err := cfg.NewWriter(buf)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create lzma2 stream: %w", err)
	}

	p.logger.Debug().
		Str("path", path).
		Int("preset", p.level).
		Int("dict_cap", cfg.DictCap).
		Msg("solid archive opened for writing")

	return &solidWriter{path: path, file: f, buf: buf, xw: xw, tw: tar.NewWriter(xw)}, nil
}

// Open scans the container once to index its entries.
func (p *SolidProvider) Open(ctx context.Context, path string) (Reader, error) {
	r := &solidReader{path: path}

	var names []string
	err := r.walk(func(hdr *tar.Header, _ io.Reader) (bool, error) {
		names = append(names, hdr.Name)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	r.names = names

	p.logger.Debug().Str("path", path).Int("entries", len(names)).Msg("solid archive indexed")

	return r, nil
}

type solidWriter struct {
	path string
	file *os.File
	buf  *bufio.Writer
	xw   *xz.Writer
	tw   *tar.Writer
}

func (w *solidWriter) WriteFile(name, sourcePath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", sourcePath, err)
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX

	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("add entry %s: %w", name, err)
	}
	if _, err := io.Copy(w.tw, src); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

func (w *solidWriter) WriteBytes(name string, data []byte) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("add entry %s: %w", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

func (w *solidWriter) Close() error {
	err := w.tw.Close()
	if xerr := w.xw.Close(); err == nil {
		err = xerr
	}
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func (w *solidWriter) Abort() error {
	w.file.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial archive: %w", err)
	}
	return nil
}

type solidReader struct {
	path  string
	names []string
}

// walk decompresses the container and calls fn for every regular file
// entry until fn returns false.
func (r *solidReader) walk(fn func(hdr *tar.Header, body io.Reader) (bool, error)) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	xr, err := xz.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, r.path, err)
	}

	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, r.path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		more, err := fn(hdr, tr)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (r *solidReader) Entries() []string {
	return append([]string(nil), r.names...)
}

func (r *solidReader) ExtractAll(destDir string, opts ExtractOptions) error {
	return r.walk(func(hdr *tar.Header, body io.Reader) (bool, error) {
		if opts.Skip != nil && opts.Skip(hdr.Name) {
			return true, nil
		}

		dst, err := entryPath(destDir, hdr.Name)
		if err != nil {
			return false, err
		}
		if err := writeFile(dst, body, hdr.FileInfo().Mode()); err != nil {
			return false, err
		}
		if opts.Progress != nil {
			opts.Progress(hdr.Name)
		}
		return true, nil
	})
}

func (r *solidReader) ReadEntry(name string) ([]byte, error) {
	var data []byte
	found := false
	err := r.walk(func(hdr *tar.Header, body io.Reader) (bool, error) {
		if hdr.Name != name {
			return true, nil
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, body); err != nil {
			return false, fmt.Errorf("%w: read entry %s: %v", ErrArchiveCorrupt, name, err)
		}
		data = buf.Bytes()
		found = true
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return data, nil
}

func (r *solidReader) Close() error {
	return nil
}
