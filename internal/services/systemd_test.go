//go:build linux

package services

import (
	"context"
	"errors"
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDBus answers unit jobs with a fixed error or job result.
type stubDBus struct {
	calls  []string
	err    error
	result string
	closed bool
}

func (s *stubDBus) StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	return s.job("stop "+name, ch)
}

func (s *stubDBus) StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	return s.job("start "+name, ch)
}

func (s *stubDBus) job(call string, ch chan<- string) (int, error) {
	s.calls = append(s.calls, call)
	if s.err != nil {
		return 0, s.err
	}
	ch <- s.result
	return 1, nil
}

func (s *stubDBus) Close() { s.closed = true }

func newStubManager(stub *stubDBus) *SystemdManager {
	return NewSystemdManager(func(ctx context.Context) (DBusAPI, error) {
		return stub, nil
	}, zerolog.Nop())
}

func TestSystemdManager(t *testing.T) {
	t.Run("stop done", func(t *testing.T) {
		stub := &stubDBus{result: "done"}
		require.NoError(t, newStubManager(stub).Stop(context.Background(), "plexmediaserver"))
		assert.Equal(t, []string{"stop plexmediaserver.service"}, stub.calls)
		assert.True(t, stub.closed)
	})

	t.Run("start keeps explicit unit type", func(t *testing.T) {
		stub := &stubDBus{result: "done"}
		require.NoError(t, newStubManager(stub).Start(context.Background(), "plex.socket"))
		assert.Equal(t, []string{"start plex.socket"}, stub.calls)
	})

	t.Run("no such unit is absent", func(t *testing.T) {
		stub := &stubDBus{err: godbus.Error{Name: noSuchUnit, Body: []interface{}{"Unit plexmediaserver.service not loaded."}}}
		err := newStubManager(stub).Stop(context.Background(), "plexmediaserver")
		assert.ErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("other dbus error", func(t *testing.T) {
		stub := &stubDBus{err: godbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}}
		err := newStubManager(stub).Stop(context.Background(), "plexmediaserver")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("failed job result", func(t *testing.T) {
		stub := &stubDBus{result: "failed"}
		err := newStubManager(stub).Start(context.Background(), "plexmediaserver")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"failed"`)
	})

	t.Run("connection failure", func(t *testing.T) {
		m := NewSystemdManager(func(ctx context.Context) (DBusAPI, error) {
			return nil, errors.New("no system bus")
		}, zerolog.Nop())
		assert.Error(t, m.Stop(context.Background(), "plexmediaserver"))
	})
}
