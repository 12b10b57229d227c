package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/plexbackup/internal/archive"
	"github.com/MacJediWizard/plexbackup/internal/backup"
	"github.com/MacJediWizard/plexbackup/internal/config"
	"github.com/MacJediWizard/plexbackup/internal/diagnostics"
	"github.com/MacJediWizard/plexbackup/internal/metrics"
	"github.com/MacJediWizard/plexbackup/internal/registry"
	"github.com/MacJediWizard/plexbackup/internal/services"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Stop Plex, archive its data and registry settings, and start it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), opts, backup.ModeBackup)
		},
	}
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the most recent archive into the Plex data directory",
		Long: `Restore the most recent archive for the configured format.

Plex is stopped while the data directory and registry settings are
overwritten, and started again afterwards. Nothing is stopped when the
backup directory holds no archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), opts, backup.ModeRestore)
		},
	}
}

func runJob(parent context.Context, opts *rootOptions, mode backup.Mode) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signalContext(parent)
	defer stop()

	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	job, store, err := buildJob(ctx, e, mode)
	if err != nil {
		e.logger.Error().Err(err).Str("mode", string(mode)).Msg("run aborted before touching services")
		return err
	}

	logger := e.logger.With().Str("job_id", job.ID).Logger()
	controller := services.NewController(services.NewManager(logger), services.NewProcessKiller(logger), logger)
	capsule := registry.NewCapsule(store, logger)
	providers := func(f archive.Format, level int) (archive.Provider, error) {
		return archive.NewProvider(f, archive.Options{
			Level:      level,
			ToolBinary: e.cfg.ArchiveTool,
			Logger:     logger,
		})
	}

	orch := backup.NewOrchestrator(controller, capsule, providers, logger)
	if !opts.noProgress {
		orch.SetProgressOutput(os.Stderr)
	}

	fmt.Printf("Starting %s (job %s)\n", mode, job.ID)
	fmt.Printf("Data:    %s\n", job.DataDir)
	fmt.Printf("Backups: %s\n", job.BackupRoot)
	fmt.Println()

	summary, runErr := orch.Run(ctx, job)
	writeMetrics(e, summary, runErr)
	printSummary(os.Stdout, summary, runErr)
	if runErr != nil {
		return runErr
	}

	if mode == backup.ModeBackup {
		policy := retentionPolicy(e.cfg)
		if policy.Enabled() {
			result, err := backup.NewRetentionEnforcer(logger).Apply(job.BackupRoot, job.Format.Extension, policy, false)
			if err != nil {
				logger.Warn().Err(err).Msg("retention failed; new archive kept")
				return nil
			}
			fmt.Printf("Retention (%s): removed %d archive(s)\n", policy, len(result.Removed))
		}
	}
	return nil
}

func retentionPolicy(cfg *config.Config) backup.RetentionPolicy {
	return backup.RetentionPolicy{
		KeepLast:    cfg.Retention.KeepLast,
		KeepDaily:   cfg.Retention.KeepDaily,
		KeepWeekly:  cfg.Retention.KeepWeekly,
		KeepMonthly: cfg.Retention.KeepMonthly,
	}
}

// buildJob resolves everything a run needs before any service is touched.
func buildJob(ctx context.Context, e *env, mode backup.Mode) (*backup.Job, *registry.RegStore, error) {
	format, err := e.cfg.Format()
	if err != nil {
		return nil, nil, err
	}
	names, err := e.cfg.Excludes()
	if err != nil {
		return nil, nil, err
	}

	store := e.registryStore()
	installPath := e.cfg.InstallPath
	if installPath == "" {
		installPath, err = store.InstallPath(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	job := &backup.Job{
		ID:               uuid.New().String(),
		Mode:             mode,
		DataDir:          e.cfg.DataDir,
		InstallPath:      installPath,
		BackupRoot:       e.cfg.BackupDir,
		Format:           format,
		CompressionLevel: e.cfg.Level(),
		Excludes:         backup.NewExcludeSet(names...),
		Services: services.ServiceSet{
			Services:    e.cfg.Services,
			MainProcess: e.cfg.MainProcess,
		},
		Timestamp: time.Now(),
	}
	return job, store, nil
}

func writeMetrics(e *env, summary *backup.Summary, runErr error) {
	if e.cfg.MetricsFile == "" {
		return
	}

	path, err := metrics.WriteTextfile(e.cfg.MetricsFile, metrics.Run{
		Mode:            string(summary.Mode),
		Success:         runErr == nil,
		Finished:        time.Now(),
		Duration:        summary.Duration,
		Files:           summary.Files,
		Bytes:           summary.Bytes,
		ArchiveBytes:    summary.ArchiveSize,
		ServiceFailures: summary.ServiceFailures(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to write metrics textfile")
		return
	}
	e.logger.Debug().Str("path", path).Msg("metrics textfile written")
}

func printSummary(w io.Writer, s *backup.Summary, runErr error) {
	fmt.Fprintln(w)
	for _, o := range s.Stopped {
		printOutcome(w, "stop", o)
	}
	for _, o := range s.Started {
		printOutcome(w, "start", o)
	}

	switch {
	case s.ArchivePath == "":
	case runErr != nil && s.Mode == backup.ModeBackup:
		fmt.Fprintf(w, "Archive:  %s (discarded)\n", s.ArchivePath)
	default:
		fmt.Fprintf(w, "Archive:  %s\n", s.ArchivePath)
	}
	fmt.Fprintf(w, "Files:    %d\n", s.Files)
	if s.Bytes > 0 {
		fmt.Fprintf(w, "Data:     %s\n", diagnostics.FormatBytes(s.Bytes))
	}
	if s.ArchiveSize > 0 {
		fmt.Fprintf(w, "Size:     %s\n", diagnostics.FormatBytes(s.ArchiveSize))
	}
	fmt.Fprintf(w, "Duration: %s\n", s.Duration.Round(time.Second))

	if runErr != nil {
		fmt.Fprintf(w, "\n%s failed: %v\n", s.Mode, runErr)
		return
	}
	fmt.Fprintf(w, "\n%s completed.\n", s.Mode)
}

func printOutcome(w io.Writer, op string, o services.Outcome) {
	if o.Err != nil {
		fmt.Fprintf(w, "  %-5s %-30s %s (%v)\n", op, o.Name, o.Status, o.Err)
		return
	}
	fmt.Fprintf(w, "  %-5s %-30s %s\n", op, o.Name, o.Status)
}
