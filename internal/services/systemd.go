//go:build linux

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// noSuchUnit is the D-Bus error name systemd replies with for unknown units.
const noSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"

// DBusAPI is the subset of the systemd D-Bus connection used here.
type DBusAPI interface {
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	Close()
}

// DBusAPIFactory opens a new systemd connection.
type DBusAPIFactory = func(ctx context.Context) (DBusAPI, error)

// SystemdManager controls units through the systemd D-Bus API.
type SystemdManager struct {
	newDBus DBusAPIFactory
	logger  zerolog.Logger
}

// NewManager returns the platform service manager.
func NewManager(logger zerolog.Logger) Manager {
	return NewSystemdManager(func(ctx context.Context) (DBusAPI, error) {
		return dbus.NewWithContext(ctx)
	}, logger)
}

// NewSystemdManager creates a SystemdManager using the given connection factory.
func NewSystemdManager(newDBus DBusAPIFactory, logger zerolog.Logger) *SystemdManager {
	return &SystemdManager{
		newDBus: newDBus,
		logger:  logger.With().Str("component", "systemd").Logger(),
	}
}

// Stop stops the unit and waits for the job to finish.
func (m *SystemdManager) Stop(ctx context.Context, name string) error {
	return m.do(ctx, "stop", name, func(conn DBusAPI, ch chan string) (int, error) {
		return conn.StopUnitContext(ctx, unitName(name), "replace", ch)
	})
}

// Start starts the unit and waits for the job to finish.
func (m *SystemdManager) Start(ctx context.Context, name string) error {
	return m.do(ctx, "start", name, func(conn DBusAPI, ch chan string) (int, error) {
		return conn.StartUnitContext(ctx, unitName(name), "replace", ch)
	})
}

func (m *SystemdManager) do(ctx context.Context, op, name string, call func(DBusAPI, chan string) (int, error)) error {
	conn, err := m.newDBus(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	ch := make(chan string, 1)
	if _, err := call(conn, ch); err != nil {
		if isNoSuchUnit(err) {
			return fmt.Errorf("%s %s: %w", op, name, ErrServiceNotFound)
		}
		return fmt.Errorf("%s %s: %w", op, name, err)
	}

	select {
	case result := <-ch:
		m.logger.Debug().Str("unit", unitName(name)).Str("op", op).Str("result", result).Msg("systemd job finished")
		if result != "done" {
			return fmt.Errorf("%s %s: job result %q", op, name, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isNoSuchUnit(err error) bool {
	var value godbus.Error
	if errors.As(err, &value) {
		return value.Name == noSuchUnit
	}
	var ptr *godbus.Error
	if errors.As(err, &ptr) {
		return ptr.Name == noSuchUnit
	}
	return false
}

// unitName appends the .service suffix when the name has no unit type.
func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
