// Package services stops and starts the Plex services around a backup or
// restore and terminates the main server process. Every call is best-effort:
// failures are reported as outcomes and never abort the caller.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrServiceNotFound is returned by a Manager when the named service is not
// installed on this machine.
var ErrServiceNotFound = errors.New("service does not exist")

// ErrProcessNotFound is returned by a Killer when no process matched.
var ErrProcessNotFound = errors.New("process not running")

// Status classifies the result of a single service-control call.
type Status int

const (
	StatusStopped Status = iota + 1
	StatusStarted
	StatusAbsent
	StatusFailed
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarted:
		return "started"
	case StatusAbsent:
		return "absent"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the per-service result of StopAll, StartAll or
// TerminateMainProcess. Err is set only when Status is StatusFailed.
type Outcome struct {
	Name   string
	Status Status
	Err    error
}

// Failed reports whether the call failed for a reason other than absence.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// ServiceSet is the ordered list of services to control plus the image
// name of the main application process.
type ServiceSet struct {
	Services    []string
	MainProcess string
}

// Manager controls a single named service on the platform service manager.
// Implementations return ErrServiceNotFound (possibly wrapped) when the
// service does not exist and treat already stopped or already running
// services as success.
type Manager interface {
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
}

// Killer force-terminates every process whose image name matches name and
// returns how many were killed. It returns ErrProcessNotFound when nothing
// matched.
type Killer interface {
	Kill(ctx context.Context, name string) (int, error)
}

// Controller drives a Manager and Killer over a ServiceSet.
type Controller struct {
	manager Manager
	killer  Killer
	logger  zerolog.Logger
}

// NewController creates a new Controller. killer may be nil, in which case
// TerminateMainProcess reports the process as absent.
func NewController(manager Manager, killer Killer, logger zerolog.Logger) *Controller {
	return &Controller{
		manager: manager,
		killer:  killer,
		logger:  logger.With().Str("component", "services").Logger(),
	}
}

// StopAll stops every service in set in order, then terminates the main
// process. The returned outcomes include the main process when one is named.
func (c *Controller) StopAll(ctx context.Context, set ServiceSet) []Outcome {
	outcomes := make([]Outcome, 0, len(set.Services)+1)
	for _, name := range set.Services {
		c.logger.Debug().Str("service", name).Msg("stopping service")
		outcome := classify(name, c.manager.Stop(ctx, name), StatusStopped)
		c.log(outcome, "stop")
		outcomes = append(outcomes, outcome)
	}

	if set.MainProcess != "" {
		outcomes = append(outcomes, c.TerminateMainProcess(ctx, set.MainProcess))
	}
	return outcomes
}

// StartAll starts every service in set in order.
func (c *Controller) StartAll(ctx context.Context, set ServiceSet) []Outcome {
	outcomes := make([]Outcome, 0, len(set.Services))
	for _, name := range set.Services {
		c.logger.Debug().Str("service", name).Msg("starting service")
		outcome := classify(name, c.manager.Start(ctx, name), StatusStarted)
		c.log(outcome, "start")
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// TerminateMainProcess force-kills the main application process, which can
// outlive its service.
func (c *Controller) TerminateMainProcess(ctx context.Context, name string) Outcome {
	if c.killer == nil {
		return Outcome{Name: name, Status: StatusAbsent}
	}

	n, err := c.killer.Kill(ctx, name)
	var outcome Outcome
	switch {
	case errors.Is(err, ErrProcessNotFound):
		outcome = Outcome{Name: name, Status: StatusAbsent}
	case err != nil:
		outcome = Outcome{Name: name, Status: StatusFailed, Err: err}
	default:
		outcome = Outcome{Name: name, Status: StatusStopped}
	}

	switch outcome.Status {
	case StatusFailed:
		c.logger.Warn().Err(err).Str("process", name).Msg("failed to terminate process")
	case StatusAbsent:
		c.logger.Info().Str("process", name).Msg("process not running, skipping")
	default:
		c.logger.Info().Str("process", name).Int("killed", n).Msg("process terminated")
	}
	return outcome
}

func classify(name string, err error, ok Status) Outcome {
	switch {
	case err == nil:
		return Outcome{Name: name, Status: ok}
	case errors.Is(err, ErrServiceNotFound):
		return Outcome{Name: name, Status: StatusAbsent}
	default:
		return Outcome{Name: name, Status: StatusFailed, Err: err}
	}
}

func (c *Controller) log(o Outcome, op string) {
	switch o.Status {
	case StatusFailed:
		c.logger.Warn().Err(o.Err).Str("service", o.Name).Str("op", op).Msg("service control failed")
	case StatusAbsent:
		c.logger.Info().Str("service", o.Name).Str("op", op).Msg("service does not exist, skipping")
	default:
		c.logger.Info().Str("service", o.Name).Str("status", o.Status.String()).Msg("service " + o.Status.String())
	}
}

// Failures counts the failed outcomes.
func Failures(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
