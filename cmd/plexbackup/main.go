// Package main is the entrypoint for the plexbackup CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/plexbackup/internal/backup"
	"github.com/MacJediWizard/plexbackup/internal/config"
	"github.com/MacJediWizard/plexbackup/internal/logging"
	"github.com/MacJediWizard/plexbackup/internal/registry"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Process exit codes.
const (
	exitGeneric     = 1
	exitConfig      = 2
	exitInstallPath = 3
	exitNoBackup    = 4
	exitArchiveStep = 5
)

type rootOptions struct {
	configPath string
	verbose    bool
	noProgress bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrConfig):
		return exitConfig
	case errors.Is(err, registry.ErrInstallPathNotFound):
		return exitInstallPath
	case errors.Is(err, backup.ErrNoBackupFound):
		return exitNoBackup
	case backup.FailedStep(err) != "":
		return exitArchiveStep
	default:
		return exitGeneric
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "plexbackup",
		Short: "Back up and restore a local Plex Media Server",
		Long: `plexbackup stops the Plex services, archives the Plex data directory
together with the Plex registry settings, and starts the services again.

Run 'plexbackup backup' to create an archive and 'plexbackup restore' to
restore the most recent one.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the config file (default: config.yaml next to the executable)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to the console at debug level")
	rootCmd.PersistentFlags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	rootCmd.AddCommand(
		newVersionCmd(),
		newBackupCmd(opts),
		newRestoreCmd(opts),
		newListCmd(opts),
		newPruneCmd(opts),
		newDoctorCmd(opts),
		newConfigCmd(opts),
		newExcludesCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("plexbackup %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

// env is the configuration and logger shared by the commands that touch Plex.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

func setup(opts *rootOptions) (*env, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.Setup(cfg, opts.verbose, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closer: closer}, nil
}

func (e *env) Close() {
	e.closer.Close()
}

func (e *env) registryStore() *registry.RegStore {
	return registry.NewRegStoreWithBinary(e.cfg.RegistryTool, e.cfg.RegistryKey, e.logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
