package capture

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a scriptable Backend: each Start call pops the next
// scripted (frame, status) pair and delivers it to onDone synchronously.
type fakeBackend struct {
	script   []doneEvent
	next     int
	starts   int32
	stopped  bool
	onDone   func(*Frame, Status)
	startErr error
}

func (b *fakeBackend) Start() error {
	atomic.AddInt32(&b.starts, 1)
	if b.startErr != nil {
		return b.startErr
	}
	if b.next >= len(b.script) {
		return nil
	}
	ev := b.script[b.next]
	b.next++
	if b.onDone != nil {
		go b.onDone(ev.frame, ev.status)
	}
	return nil
}

func (b *fakeBackend) Stop()  { b.stopped = true }
func (b *fakeBackend) Status() Status { return StatusIdle }
func (b *fakeBackend) SetOnDone(fn func(*Frame, Status)) { b.onDone = fn }

func TestSchedulerDeliversFramesAndStopsOnCancel(t *testing.T) {
	backend := &fakeBackend{
		script: []doneEvent{
			{frame: &Frame{Width: 1}, status: StatusDone},
			{frame: &Frame{Width: 2}, status: StatusDone},
		},
	}
	s := NewScheduler(nil, backend, nil, 1000, 10*time.Millisecond)

	var received []int
	done := make(chan struct{})
	s.OnFrame(func(f *Frame) {
		received = append(received, f.Width)
		if len(received) == 2 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frames")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	assert.True(t, backend.stopped)
	assert.Equal(t, []int{1, 2}, received)
}

func TestSchedulerFailsOverOnFatal(t *testing.T) {
	primary := &fakeBackend{
		script: []doneEvent{{status: StatusFatal}},
	}
	fallback := &fakeBackend{
		script: []doneEvent{{frame: &Frame{Width: 99}, status: StatusDone}},
	}
	s := NewScheduler(nil, primary, fallback, 1000, 10*time.Millisecond)

	gotFrame := make(chan *Frame, 1)
	s.OnFrame(func(f *Frame) { gotFrame <- f })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case f := <-gotFrame:
		assert.Equal(t, 99, f.Width)
	case <-time.After(time.Second):
		t.Fatal("fallback never produced a frame")
	}
}

func TestSchedulerReportsFatalWhenNoFallback(t *testing.T) {
	primary := &fakeBackend{
		script: []doneEvent{{status: StatusFatal}},
	}
	s := NewScheduler(nil, primary, nil, 1000, 10*time.Millisecond)

	fatalCh := make(chan error, 1)
	s.OnFatal(func(err error) { fatalCh <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	select {
	case err := <-fatalCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("OnFatal never fired")
	}

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after going fatal")
	}
}
