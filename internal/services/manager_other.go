//go:build !linux && !windows

package services

import (
	"context"
	"errors"
	"runtime"

	"github.com/rs/zerolog"
)

var errNoServiceManager = errors.New("no supported service manager on " + runtime.GOOS)

type unsupportedManager struct{}

// NewManager returns a Manager whose calls always fail. Outcomes are
// reported as failures and the run continues.
func NewManager(logger zerolog.Logger) Manager {
	logger.Warn().Str("os", runtime.GOOS).Msg("service control is not supported on this platform")
	return unsupportedManager{}
}

func (unsupportedManager) Stop(ctx context.Context, name string) error  { return errNoServiceManager }
func (unsupportedManager) Start(ctx context.Context, name string) error { return errNoServiceManager }
