package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultStagingConcurrency = 4

// toolCommand describes how to drive one external archiver.
type toolCommand struct {
	binary string
	// create returns the arguments that pack the staging directory into
	// archivePath. The command runs with staging as its working directory.
	create func(archivePath, staging string, level int) []string
	// extract returns the arguments that unpack archivePath into destDir.
	extract func(archivePath, destDir string) []string
}

func tarCommand(flag string) toolCommand {
	return toolCommand{
		binary: "tar",
		create: func(archivePath, staging string, _ int) []string {
			args := []string{"-c"}
			if flag != "" {
				args = append(args, flag)
			}
			return append(args, "-f", archivePath, "-C", staging, ".")
		},
		extract: func(archivePath, destDir string) []string {
			args := []string{"-x"}
			if flag != "" {
				args = append(args, flag)
			}
			return append(args, "-f", archivePath, "-C", destDir)
		},
	}
}

var toolCommands = map[string]toolCommand{
	"tar":     tarCommand(""),
	"tar.gz":  tarCommand("-z"),
	"tgz":     tarCommand("-z"),
	"tar.bz2": tarCommand("-j"),
	"tbz2":    tarCommand("-j"),
	"tar.xz":  tarCommand("-J"),
	"txz":     tarCommand("-J"),
	"rar": {
		binary: "rar",
		create: func(archivePath, _ string, level int) []string {
			return []string{"a", "-r", "-y", fmt.Sprintf("-m%d", min(level, 9)*5/9), archivePath, "*"}
		},
		extract: func(archivePath, destDir string) []string {
			return []string{"x", "-y", archivePath, destDir + string(filepath.Separator)}
		},
	},
	"wim": {
		binary: "7z",
		create: func(archivePath, _ string, level int) []string {
			return []string{"a", "-y", "-r", "-twim", fmt.Sprintf("-mx=%d", level), archivePath, "*"}
		},
		extract: func(archivePath, destDir string) []string {
			return []string{"x", "-y", "-o" + destDir, archivePath}
		},
	},
}

// ToolProvider delegates container creation and extraction to an external
// utility chosen by file extension. The utility works on paths, so entries
// are staged into a temporary directory that is removed on every exit path.
type ToolProvider struct {
	ext         string
	cmd         toolCommand
	level       int
	concurrency int
	logger      zerolog.Logger
}

// NewToolProvider creates a ToolProvider for the given extension.
func NewToolProvider(ext string, opts Options) (*ToolProvider, error) {
	cmd, ok := toolCommands[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no archiving tool for %q", ErrUnsupportedFormat, ext)
	}
	if opts.ToolBinary != "" {
		cmd.binary = opts.ToolBinary
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultStagingConcurrency
	}

	return &ToolProvider{
		ext:         ext,
		cmd:         cmd,
		level:       opts.Level,
		concurrency: concurrency,
		logger:      opts.Logger.With().Str("component", "tool_archive").Str("tool", cmd.binary).Logger(),
	}, nil
}

// Format returns the tool format.
func (p *ToolProvider) Format() Format {
	return Format{Kind: KindGenericTool, Extension: p.ext}
}

// Binary returns the archiver command this provider runs.
func (p *ToolProvider) Binary() string {
	return p.cmd.binary
}

// Create allocates a staging directory next to path. Entries are copied into
// it and the tool runs on Close.
func (p *ToolProvider) Create(ctx context.Context, path string) (Writer, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}
	if _, err := os.Stat(absPath); err == nil {
		return nil, fmt.Errorf("create archive: %s already exists", absPath)
	}

	staging, err := os.MkdirTemp(filepath.Dir(absPath), ".plexbackup-staging-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	p.logger.Debug().Str("path", absPath).Str("staging", staging).Msg("staging directory created")

	return &toolWriter{p: p, ctx: ctx, gctx: gctx, g: g, path: absPath, staging: staging}, nil
}

// Open unpacks the container into a staging directory next to path and
// indexes it. The directory is removed by Close.
func (p *ToolProvider) Open(ctx context.Context, path string) (Reader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(absPath), ".plexbackup-extract-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	if _, err := p.run(ctx, "", p.cmd.extract(absPath, staging)); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, absPath, err)
	}

	names, err := listFiles(staging)
	if err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("index extracted archive: %w", err)
	}

	return &toolReader{staging: staging, names: names}, nil
}

// run executes the archiving tool and returns its stdout.
func (p *ToolProvider) run(ctx context.Context, dir string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, p.cmd.binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.Debug().
		Str("command", p.cmd.binary).
		Strs("args", args).
		Str("dir", dir).
		Msg("executing archiving tool")

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg))
	}

	return stdout.Bytes(), nil
}

type toolWriter struct {
	p       *ToolProvider
	ctx     context.Context
	gctx    context.Context
	g       *errgroup.Group
	path    string
	staging string
}

func (w *toolWriter) WriteFile(name, sourcePath string) error {
	dst, err := entryPath(w.staging, name)
	if err != nil {
		return err
	}
	w.g.Go(func() error {
		if err := w.gctx.Err(); err != nil {
			return err
		}
		if err := copyFile(sourcePath, dst); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
		return nil
	})
	return nil
}

func (w *toolWriter) WriteBytes(name string, data []byte) error {
	dst, err := entryPath(w.staging, name)
	if err != nil {
		return err
	}
	return writeFile(dst, bytes.NewReader(data), 0644)
}

func (w *toolWriter) Close() error {
	defer w.removeStaging()

	if err := w.g.Wait(); err != nil {
		return err
	}

	if _, err := w.p.run(w.ctx, w.staging, w.p.cmd.create(w.path, w.staging, w.p.level)); err != nil {
		os.Remove(w.path)
		return fmt.Errorf("create archive with %s: %w", w.p.cmd.binary, err)
	}

	w.p.logger.Debug().Str("path", w.path).Msg("archive created by tool")
	return nil
}

func (w *toolWriter) Abort() error {
	_ = w.g.Wait()
	w.removeStaging()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial archive: %w", err)
	}
	return nil
}

func (w *toolWriter) removeStaging() {
	if err := os.RemoveAll(w.staging); err != nil {
		w.p.logger.Warn().Err(err).Str("staging", w.staging).Msg("failed to remove staging directory")
	}
}

type toolReader struct {
	staging string
	names   []string
}

func (r *toolReader) Entries() []string {
	return append([]string(nil), r.names...)
}

func (r *toolReader) ExtractAll(destDir string, opts ExtractOptions) error {
	for _, name := range r.names {
		if opts.Skip != nil && opts.Skip(name) {
			continue
		}
		dst, err := entryPath(destDir, name)
		if err != nil {
			return err
		}
		if err := copyFile(filepath.Join(r.staging, filepath.FromSlash(name)), dst); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
		if opts.Progress != nil {
			opts.Progress(name)
		}
	}
	return nil
}

func (r *toolReader) ReadEntry(name string) ([]byte, error) {
	for _, n := range r.names {
		if n == name {
			return os.ReadFile(filepath.Join(r.staging, filepath.FromSlash(name)))
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

func (r *toolReader) Close() error {
	return os.RemoveAll(r.staging)
}
