package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MacJediWizard/plexbackup/internal/backup"
	"github.com/MacJediWizard/plexbackup/internal/config"
	"github.com/MacJediWizard/plexbackup/internal/diagnostics"
	"github.com/MacJediWizard/plexbackup/internal/excludes"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives in the backup directory, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			format, err := cfg.Format()
			if err != nil {
				return err
			}

			archives, err := backup.ListArchives(cfg.BackupDir, format.Extension)
			if err != nil {
				return err
			}
			if len(archives) == 0 {
				fmt.Printf("No %s archives in %s\n", format, cfg.BackupDir)
				return nil
			}

			fmt.Printf("%-36s  %-19s  %10s\n", "NAME", "CREATED", "SIZE")
			for i, a := range archives {
				marker := ""
				if i == 0 {
					marker = "  (restore target)"
				}
				fmt.Printf("%-36s  %-19s  %10s%s\n",
					a.Name,
					a.Timestamp.Format("2006-01-02 15:04:05"),
					diagnostics.FormatBytes(a.Size),
					marker,
				)
			}
			return nil
		},
	}
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove archives outside the configured retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			format, err := e.cfg.Format()
			if err != nil {
				return err
			}
			policy := retentionPolicy(e.cfg)
			if !policy.Enabled() {
				fmt.Println("No retention policy configured; nothing to prune.")
				return nil
			}

			result, err := backup.NewRetentionEnforcer(e.logger).Apply(e.cfg.BackupDir, format.Extension, policy, dryRun)
			if err != nil {
				return err
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, a := range result.Removed {
				fmt.Printf("%s %s\n", verb, a.Name)
			}
			fmt.Printf("Policy %s: %d kept, %d removed\n", policy, len(result.Kept), len(result.Removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that backup and restore can run on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			result := diagnostics.NewRunner(e.cfg, e.registryStore(), Version).Run(cmd.Context())

			if jsonOutput {
				data, err := result.ToJSON()
				if err != nil {
					return fmt.Errorf("encode diagnostics: %w", err)
				}
				fmt.Println(string(data))
			} else {
				for _, c := range result.Checks {
					fmt.Printf("[%-4s] %-14s %s\n", strings.ToUpper(string(c.Status)), c.Name, c.Message)
				}
				fmt.Println()
				fmt.Printf("%d checks: %d passed, %d warnings, %d failed, %d skipped\n",
					result.Summary.Total, result.Summary.Passed, result.Summary.Warned,
					result.Summary.Failed, result.Summary.Skipped)
			}

			if !result.Summary.AllPass {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage plexbackup configuration",
	}

	cmd.AddCommand(
		newConfigInitCmd(opts),
		newConfigShowCmd(opts),
	)

	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file populated with the defaults for this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			cfg, err := config.Defaults(runtime.GOOS)
			if err != nil {
				return fmt.Errorf("%w: %w", config.ErrConfig, err)
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			fmt.Printf("Config written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			names, err := cfg.Excludes()
			if err != nil {
				return err
			}

			installPath := cfg.InstallPath
			if installPath == "" {
				installPath = "(from registry)"
			}

			fmt.Printf("Backup dir:        %s\n", cfg.BackupDir)
			fmt.Printf("Data dir:          %s\n", cfg.DataDir)
			fmt.Printf("Install path:      %s\n", installPath)
			fmt.Printf("Archive format:    %s\n", cfg.ArchiveFormat)
			if cfg.ArchiveTool != "" {
				fmt.Printf("Archive tool:      %s\n", cfg.ArchiveTool)
			}
			fmt.Printf("Compression level: %d\n", cfg.Level())
			fmt.Printf("Excluded folders:  %s\n", strings.Join(names, ", "))
			fmt.Printf("Services:          %s\n", strings.Join(cfg.Services, ", "))
			fmt.Printf("Main process:      %s\n", cfg.MainProcess)
			fmt.Printf("Registry key:      %s\n", cfg.RegistryKey)
			fmt.Printf("Log dir:           %s (%s)\n", cfg.LogDir, cfg.LogLevel)
			if cfg.MetricsFile != "" {
				fmt.Printf("Metrics file:      %s\n", cfg.MetricsFile)
			}
			return nil
		},
	}
}

func newExcludesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "excludes",
		Short: "List the built-in exclusion presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, category := range excludes.GetAllCategories() {
				info := excludes.Categories[category]
				fmt.Printf("%s: %s\n", info.Name, info.Description)
				for _, p := range excludes.GetPatternsByCategory(category) {
					fmt.Printf("  %-22s %s\n", p.Name, p.Description)
					fmt.Printf("  %-22s excludes: %s\n", "", strings.Join(p.Patterns, ", "))
				}
				fmt.Println()
			}
			fmt.Println("Enable presets with exclude_presets in the config file.")
		},
	}
}
