package wlclient

import (
	"context"
	"log/slog"
	"time"
)

// Monitor watches a Display for the Wayland connection going away and
// attempts a bounded number of reconnects with backoff before giving up,
// the same role desktop.go's session monitor goroutine plays for its
// PipeWire/portal session: detect closure, recreate, and only surface
// failure upward once retries are exhausted.
type Monitor struct {
	log         *slog.Logger
	connect     func(ctx context.Context) (*Display, error)
	maxRetries  int
	baseBackoff time.Duration

	onReconnect func(*Display)
	onGiveUp    func(error)
}

// NewMonitor builds a Monitor around a connect function (typically
// wlclient.Connect bound to a fixed log/ctx pair) so it can re-establish the
// Wayland connection without the caller re-deriving connection parameters.
func NewMonitor(log *slog.Logger, connect func(ctx context.Context) (*Display, error)) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		log:         log,
		connect:     connect,
		maxRetries:  5,
		baseBackoff: 500 * time.Millisecond,
	}
}

// OnReconnect registers a callback invoked with the new Display after a
// successful reconnect, so the caller can rebind its capture managers.
func (m *Monitor) OnReconnect(fn func(*Display)) { m.onReconnect = fn }

// OnGiveUp registers a callback invoked once retries are exhausted.
func (m *Monitor) OnGiveUp(fn func(error)) { m.onGiveUp = fn }

// Watch blocks dispatching d's events until the connection fails, then
// attempts reconnects with exponential backoff up to maxRetries before
// calling onGiveUp. Returns when ctx is cancelled or retries are exhausted.
func (m *Monitor) Watch(ctx context.Context, d *Display) error {
	for {
		err := m.pump(ctx, d)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Warn("wayland connection lost, attempting reconnect", "error", err)

		next, reconnectErr := m.reconnectWithBackoff(ctx)
		if reconnectErr != nil {
			if m.onGiveUp != nil {
				m.onGiveUp(reconnectErr)
			}
			return reconnectErr
		}
		d = next
		if m.onReconnect != nil {
			m.onReconnect(d)
		}
	}
}

func (m *Monitor) pump(ctx context.Context, d *Display) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Dispatch(); err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) reconnectWithBackoff(ctx context.Context) (*Display, error) {
	backoff := m.baseBackoff
	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		d, err := m.connect(ctx)
		if err == nil {
			m.log.Info("wayland reconnected", "attempt", attempt+1)
			return d, nil
		}
		lastErr = err
		m.log.Debug("reconnect attempt failed", "attempt", attempt+1, "error", err)
		backoff *= 2
	}
	return nil, lastErr
}
