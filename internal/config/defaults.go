package config

import (
	"os"
	"path/filepath"
)

type defaults struct {
	backupDir   string
	dataDir     string
	services    []string
	mainProcess string
}

// platformDefaults returns the Plex locations for goos.
func platformDefaults(goos string) (defaults, error) {
	switch goos {
	case "windows":
		var dataDir string
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dataDir = filepath.Join(local, "Plex Media Server")
		}
		return defaults{
			backupDir:   "C:/Backups",
			dataDir:     dataDir,
			services:    []string{"PlexUpdateService", "PlexService"},
			mainProcess: "Plex Media Server.exe",
		}, nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return defaults{}, err
		}
		return defaults{
			backupDir:   filepath.Join(home, "Backups"),
			dataDir:     filepath.Join(home, "Library", "Application Support", "Plex Media Server"),
			services:    []string{},
			mainProcess: "Plex Media Server",
		}, nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return defaults{}, err
		}
		return defaults{
			backupDir:   filepath.Join(home, "Backups"),
			dataDir:     "/var/lib/plexmediaserver/Library/Application Support/Plex Media Server",
			services:    []string{"plexmediaserver"},
			mainProcess: "Plex Media Server",
		}, nil
	}
}

// Defaults returns a configuration populated with every default for the
// running platform.
func Defaults(goos string) (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyDefaults(goos); err != nil {
		return nil, err
	}
	return cfg, nil
}
