package wlclient

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCompositorReadsXDGCurrentDesktop(t *testing.T) {
	cases := []struct {
		env  string
		want string
	}{
		{"sway", "sway"},
		{"Sway", "sway"},
		{"GNOME", "gnome"},
		{"ubuntu:GNOME", "gnome"},
		{"", "unknown"},
		{"KDE", "KDE"},
	}

	for _, c := range cases {
		t.Run(c.env, func(t *testing.T) {
			t.Setenv("XDG_CURRENT_DESKTOP", c.env)
			assert.Equal(t, c.want, DetectCompositor())
		})
	}
}

func TestDetectCompositorUnsetEnvIsUnknown(t *testing.T) {
	os.Unsetenv("XDG_CURRENT_DESKTOP")
	assert.Equal(t, "unknown", DetectCompositor())
}

var errConnRefused = errors.New("connection refused")

func TestMonitorGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	m := NewMonitor(nil, func(ctx context.Context) (*Display, error) {
		attempts++
		return nil, errConnRefused
	})
	m.baseBackoff = 0

	var gaveUp error
	m.OnGiveUp(func(err error) { gaveUp = err })

	_, err := m.reconnectWithBackoff(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnRefused)
	assert.Equal(t, m.maxRetries, attempts)
	_ = gaveUp // exercised via Watch in integration, not unit-testable without a live Display
}

func TestMonitorReconnectsOnFirstSuccess(t *testing.T) {
	attempts := 0
	want := &Display{}
	m := NewMonitor(nil, func(ctx context.Context) (*Display, error) {
		attempts++
		if attempts < 2 {
			return nil, errConnRefused
		}
		return want, nil
	})
	m.baseBackoff = 0

	got, err := m.reconnectWithBackoff(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 2, attempts)
}

func TestMonitorReconnectRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMonitor(nil, func(ctx context.Context) (*Display, error) {
		t.Fatal("connect should not be called once context is cancelled")
		return nil, nil
	})

	_, err := m.reconnectWithBackoff(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
