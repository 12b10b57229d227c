package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessKiller kills processes by image name using gopsutil.
type ProcessKiller struct {
	logger zerolog.Logger
}

// NewProcessKiller creates a new ProcessKiller.
func NewProcessKiller(logger zerolog.Logger) *ProcessKiller {
	return &ProcessKiller{logger: logger.With().Str("component", "process_killer").Logger()}
}

// Kill terminates every process whose name matches name, ignoring case and
// a trailing ".exe" on either side.
func (k *ProcessKiller) Kill(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	want := imageName(name)
	var (
		killed int
		errs   []error
	)
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil || imageName(pname) != want {
			continue
		}

		k.logger.Debug().Int32("pid", p.Pid).Str("name", pname).Msg("killing process")
		if err := p.KillWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", p.Pid, err))
			continue
		}
		killed++
	}

	if killed == 0 && len(errs) == 0 {
		return 0, ErrProcessNotFound
	}
	return killed, errors.Join(errs...)
}

func imageName(name string) string {
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, ".exe")
}
