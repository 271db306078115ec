package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreencopyManager struct {
	frame  *fakeScreencopyFrame
	refuse bool
}

func (m *fakeScreencopyManager) CaptureOutput(overlayCursor bool, sink ScreencopySink) (ScreencopyFrame, error) {
	if m.refuse {
		return nil, errors.New("refused")
	}
	m.frame = &fakeScreencopyFrame{sink: sink}
	return m.frame, nil
}

type fakeScreencopyFrame struct {
	sink      ScreencopySink
	destroyed bool
	copied    Buffer
}

func (f *fakeScreencopyFrame) CopyWithDamage(buf Buffer) error {
	f.copied = buf
	return nil
}

func (f *fakeScreencopyFrame) Destroy() { f.destroyed = true }

type fakeBuffer struct{ released bool }

type fakeBufferProvider struct {
	fail bool
	last *fakeBuffer
}

func (p *fakeBufferProvider) Allocate(format uint32, width, height, stride uint32) ([]byte, Buffer, error) {
	if p.fail {
		return nil, nil, errors.New("no memory")
	}
	p.last = &fakeBuffer{}
	return make([]byte, int(stride)*int(height)), p.last, nil
}

func (p *fakeBufferProvider) Release(buf Buffer) {
	if b, ok := buf.(*fakeBuffer); ok {
		b.released = true
	}
}

func TestScreencopyHappyPath(t *testing.T) {
	mgr := &fakeScreencopyManager{}
	buf := &fakeBufferProvider{}
	b := NewScreencopyBackend(nil, mgr, buf, false)

	var got *Frame
	var status Status
	b.SetOnDone(func(f *Frame, st Status) { got = f; status = st })

	require.NoError(t, b.Start())
	assert.Equal(t, StatusInProgress, b.Status())

	b.OnBuffer(0, 1920, 1080, 1920*4)
	b.OnBufferDone()
	assert.Same(t, buf.last, mgr.frame.copied)

	b.OnDamage(10, 10, 100, 50)
	b.OnReady()

	require.NotNil(t, got)
	assert.Equal(t, StatusDone, status)
	assert.Equal(t, 1920, got.Width)
	assert.Equal(t, 1080, got.Height)
	assert.Equal(t, FourccARGB8888, got.Format)
	assert.True(t, got.HasDamageHint)
	assert.Equal(t, Rect{X: 10, Y: 10, W: 100, H: 50}, got.DamageHint)
	assert.True(t, mgr.frame.destroyed)
}

func TestScreencopyRejectsConcurrentStart(t *testing.T) {
	mgr := &fakeScreencopyManager{}
	b := NewScreencopyBackend(nil, mgr, &fakeBufferProvider{}, false)

	require.NoError(t, b.Start())
	err := b.Start()
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestScreencopyCompositorRefusal(t *testing.T) {
	mgr := &fakeScreencopyManager{refuse: true}
	b := NewScreencopyBackend(nil, mgr, &fakeBufferProvider{}, false)

	err := b.Start()
	assert.ErrorIs(t, err, ErrCompositorRefused)
	assert.Equal(t, StatusFailed, b.Status())
}

func TestScreencopyAllocationFailureSettlesFatal(t *testing.T) {
	mgr := &fakeScreencopyManager{}
	b := NewScreencopyBackend(nil, mgr, &fakeBufferProvider{fail: true}, false)

	var status Status
	b.SetOnDone(func(f *Frame, st Status) { status = st })

	require.NoError(t, b.Start())
	b.OnBuffer(0, 640, 480, 640*4)

	assert.Equal(t, StatusFatal, status)
}

func TestScreencopyNoBufferNegotiatedSettlesFatal(t *testing.T) {
	mgr := &fakeScreencopyManager{}
	b := NewScreencopyBackend(nil, mgr, &fakeBufferProvider{}, false)

	var status Status
	b.SetOnDone(func(f *Frame, st Status) { status = st })

	require.NoError(t, b.Start())
	b.OnBufferDone()

	assert.Equal(t, StatusFatal, status)
}

func TestScreencopyDamageUnion(t *testing.T) {
	mgr := &fakeScreencopyManager{}
	b := NewScreencopyBackend(nil, mgr, &fakeBufferProvider{}, false)

	require.NoError(t, b.Start())
	b.OnDamage(0, 0, 10, 10)
	b.OnDamage(20, 20, 10, 10)

	assert.Equal(t, Rect{X: 0, Y: 0, W: 30, H: 30}, b.damage)
}

func TestScreencopyStopIsIdempotent(t *testing.T) {
	mgr := &fakeScreencopyManager{}
	buf := &fakeBufferProvider{}
	b := NewScreencopyBackend(nil, mgr, buf, false)

	require.NoError(t, b.Start())
	b.OnBuffer(0, 640, 480, 640*4)
	b.Stop()
	b.Stop()
	assert.Equal(t, StatusStopped, b.Status())
	assert.True(t, buf.last.released)
}
