// Package backup sequences Plex backup and restore runs: services are
// quiesced, the data directory is archived or extracted together with the
// registry capsule, and services are restarted on every path once stopped.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/plexbackup/internal/archive"
	"github.com/MacJediWizard/plexbackup/internal/diagnostics"
	"github.com/MacJediWizard/plexbackup/internal/registry"
)

// Orchestrator runs backup and restore jobs against injected service,
// registry and archive ports.
type Orchestrator struct {
	services  ServiceController
	state     StateCapsule
	providers ProviderFunc
	progress  io.Writer
	freeSpace func(path string) (int64, error)
	logger    zerolog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(svc ServiceController, state StateCapsule, providers ProviderFunc, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		services:  svc,
		state:     state,
		providers: providers,
		freeSpace: freeBytes,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// SetProgressOutput enables a progress bar on w for the archive and extract
// steps. A nil w disables it.
func (o *Orchestrator) SetProgressOutput(w io.Writer) {
	o.progress = w
}

// Run executes job. The returned Summary is never nil; it is filled in as far
// as the run got. Failures are returned as *StepError.
func (o *Orchestrator) Run(ctx context.Context, job *Job) (*Summary, error) {
	start := time.Now()
	summary := &Summary{JobID: job.ID, Mode: job.Mode}
	logger := o.logger.With().Str("job_id", job.ID).Str("mode", string(job.Mode)).Logger()

	logger.Info().
		Str("data_dir", job.DataDir).
		Str("install_path", job.InstallPath).
		Str("backup_root", job.BackupRoot).
		Str("format", job.Format.String()).
		Int("level", job.CompressionLevel).
		Strs("excludes", job.Excludes.Names()).
		Msg("run started")

	var err error
	switch job.Mode {
	case ModeBackup:
		err = o.backup(ctx, job, summary, logger)
	case ModeRestore:
		err = o.restore(ctx, job, summary, logger)
	default:
		err = &StepError{Step: StepPrepare, Err: fmt.Errorf("unknown mode %q", job.Mode)}
	}
	summary.Duration = time.Since(start)

	if err != nil {
		logger.Error().Err(err).
			Str("step", string(FailedStep(err))).
			Dur("duration", summary.Duration).
			Msg("run failed")
		return summary, err
	}

	logger.Info().
		Str("archive", summary.ArchivePath).
		Int("files", summary.Files).
		Int64("bytes", summary.Bytes).
		Int("service_failures", summary.ServiceFailures()).
		Dur("duration", summary.Duration).
		Msg("run completed")
	return summary, nil
}

func (o *Orchestrator) backup(ctx context.Context, job *Job, summary *Summary, logger zerolog.Logger) error {
	provider, err := o.providers(job.Format, job.CompressionLevel)
	if err != nil {
		return &StepError{Step: StepPrepare, Err: err}
	}
	if err := os.MkdirAll(job.BackupRoot, 0755); err != nil {
		return &StepError{Step: StepPrepare, Err: fmt.Errorf("create backup root: %w", err)}
	}
	summary.ArchivePath = job.ArchivePath()

	resume := o.stopServices(ctx, job, summary, logger)
	defer resume()

	files, err := Enumerate(job.DataDir, job.Excludes)
	if err != nil {
		return &StepError{Step: StepEnumerate, Err: err}
	}
	summary.Files = len(files)
	summary.Bytes = TotalSize(files)
	logger.Info().Int("files", summary.Files).Int64("bytes", summary.Bytes).Msg("data directory enumerated")
	o.warnFreeSpace(job.BackupRoot, summary.Bytes, logger)

	w, err := provider.Create(ctx, summary.ArchivePath)
	if err != nil {
		return &StepError{Step: StepArchive, Err: err}
	}

	if err := o.writeFiles(ctx, w, files); err != nil {
		o.abort(w, logger)
		return &StepError{Step: StepArchive, Err: err}
	}

	state, err := o.state.Export(ctx)
	if err != nil {
		o.abort(w, logger)
		return &StepError{Step: StepState, Err: err}
	}
	if err := w.WriteBytes(registry.EntryName, state); err != nil {
		o.abort(w, logger)
		return &StepError{Step: StepState, Err: err}
	}

	if err := w.Close(); err != nil {
		o.abort(w, logger)
		return &StepError{Step: StepArchive, Err: err}
	}

	if info, err := os.Stat(summary.ArchivePath); err == nil {
		summary.ArchiveSize = info.Size()
	}
	logger.Info().Str("archive", summary.ArchivePath).Int64("size", summary.ArchiveSize).Msg("archive written")
	return nil
}

func (o *Orchestrator) writeFiles(ctx context.Context, w archive.Writer, files []File) error {
	counter := NewProgressCounter("backup", len(files), o.progress)
	defer counter.Finish()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.WriteFile(f.Name, f.Path); err != nil {
			return err
		}
		counter.Advance(f.Name)
	}
	return nil
}

func (o *Orchestrator) restore(ctx context.Context, job *Job, summary *Summary, logger zerolog.Logger) error {
	provider, err := o.providers(job.Format, job.CompressionLevel)
	if err != nil {
		return &StepError{Step: StepPrepare, Err: err}
	}

	path, err := SelectLatest(job.BackupRoot, job.Format.Extension)
	if err != nil {
		return &StepError{Step: StepSelect, Err: err}
	}
	summary.ArchivePath = path
	if info, err := os.Stat(path); err == nil {
		summary.ArchiveSize = info.Size()
	}
	logger.Info().Str("archive", path).Msg("archive selected")

	resume := o.stopServices(ctx, job, summary, logger)
	defer resume()

	r, err := provider.Open(ctx, path)
	if err != nil {
		return &StepError{Step: StepExtract, Err: err}
	}
	defer r.Close()

	// The registry entry is required; check for it before touching the data
	// directory.
	state, err := r.ReadEntry(registry.EntryName)
	if err != nil {
		return &StepError{Step: StepState, Err: err}
	}

	if err := os.MkdirAll(job.DataDir, 0755); err != nil {
		return &StepError{Step: StepExtract, Err: fmt.Errorf("create data directory: %w", err)}
	}

	data := 0
	for _, name := range r.Entries() {
		if name != registry.EntryName {
			data++
		}
	}

	counter := NewProgressCounter("restore", data, o.progress)
	err = r.ExtractAll(job.DataDir, archive.ExtractOptions{
		Skip:     isStateEntry,
		Progress: counter.Advance,
	})
	counter.Finish()
	if err != nil {
		return &StepError{Step: StepExtract, Err: err}
	}
	summary.Files = data
	logger.Info().Int("files", data).Str("data_dir", job.DataDir).Msg("data extracted")

	if err := o.state.Import(ctx, state); err != nil {
		return &StepError{Step: StepState, Err: err}
	}
	return nil
}

// stopServices stops the job's services and returns the function that starts
// them again. The start runs on a context detached from ctx so a cancelled
// run still brings the services back.
func (o *Orchestrator) stopServices(ctx context.Context, job *Job, summary *Summary, logger zerolog.Logger) func() {
	logger.Info().Strs("services", job.Services.Services).Msg("stopping services")
	summary.Stopped = o.services.StopAll(ctx, job.Services)

	return func() {
		logger.Info().Strs("services", job.Services.Services).Msg("starting services")
		summary.Started = o.services.StartAll(context.WithoutCancel(ctx), job.Services)
	}
}

func (o *Orchestrator) abort(w archive.Writer, logger zerolog.Logger) {
	if err := w.Abort(); err != nil {
		logger.Warn().Err(err).Msg("failed to discard partial archive")
	}
}

func (o *Orchestrator) warnFreeSpace(root string, need int64, logger zerolog.Logger) {
	free, err := o.freeSpace(root)
	if err != nil {
		logger.Debug().Err(err).Msg("free space unavailable")
		return
	}
	if free < need {
		logger.Warn().
			Str("free", diagnostics.FormatBytes(free)).
			Str("data", diagnostics.FormatBytes(need)).
			Msg("backup root may not have room for an uncompressed archive")
	}
}

func isStateEntry(name string) bool {
	return name == registry.EntryName
}

func freeBytes(path string) (int64, error) {
	details, err := diagnostics.DiskSpace(path)
	if err != nil {
		return 0, err
	}
	return details.FreeBytes, nil
}
