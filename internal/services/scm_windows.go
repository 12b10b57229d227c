//go:build windows

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const (
	pollInterval = 500 * time.Millisecond
	stateTimeout = 60 * time.Second
)

// SCMManager controls services through the Windows service control manager.
type SCMManager struct {
	logger zerolog.Logger
}

// NewManager returns the platform service manager.
func NewManager(logger zerolog.Logger) Manager {
	return &SCMManager{logger: logger.With().Str("component", "scm").Logger()}
}

// Stop sends a stop control and waits until the service reports Stopped.
func (m *SCMManager) Stop(ctx context.Context, name string) error {
	return m.withService(name, func(s *mgr.Service) error {
		status, err := s.Control(svc.Stop)
		if errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stop %s: %w", name, err)
		}
		return m.waitFor(ctx, s, status, svc.Stopped)
	})
}

// Start starts the service and waits until it reports Running.
func (m *SCMManager) Start(ctx context.Context, name string) error {
	return m.withService(name, func(s *mgr.Service) error {
		err := s.Start()
		if errors.Is(err, windows.ERROR_SERVICE_ALREADY_RUNNING) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		status, err := s.Query()
		if err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}
		return m.waitFor(ctx, s, status, svc.Running)
	})
}

func (m *SCMManager) withService(name string, fn func(*mgr.Service) error) error {
	scm, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer scm.Disconnect()

	s, err := scm.OpenService(name)
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		return fmt.Errorf("open %s: %w", name, ErrServiceNotFound)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer s.Close()

	return fn(s)
}

func (m *SCMManager) waitFor(ctx context.Context, s *mgr.Service, status svc.Status, want svc.State) error {
	deadline := time.Now().Add(stateTimeout)
	for status.State != want {
		if time.Now().After(deadline) {
			return fmt.Errorf("service %s did not reach state %d", s.Name, want)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}

		var err error
		status, err = s.Query()
		if err != nil {
			return fmt.Errorf("query %s: %w", s.Name, err)
		}
	}
	m.logger.Debug().Str("service", s.Name).Uint32("state", uint32(status.State)).Msg("service reached state")
	return nil
}
