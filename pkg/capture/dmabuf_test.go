package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDmabufManager struct {
	frame  *fakeDmabufFrame
	refuse bool
}

func (m *fakeDmabufManager) CaptureOutput(overlayCursor bool, sink DmabufSink) (DmabufFrame, error) {
	if m.refuse {
		return nil, errors.New("refused")
	}
	m.frame = &fakeDmabufFrame{}
	return m.frame, nil
}

type fakeDmabufFrame struct {
	destroyed bool
}

func (f *fakeDmabufFrame) Destroy() { f.destroyed = true }

func TestDmabufHappyPath(t *testing.T) {
	mgr := &fakeDmabufManager{}
	b := NewDmabufBackend(nil, mgr, false)

	var got *Frame
	var status Status
	b.SetOnDone(func(f *Frame, st Status) { got = f; status = st })

	require.NoError(t, b.Start())
	b.OnFrame(3840, 2160, 1, 2)
	b.OnObject(0, 10, 4096, 0, 15360, 15360, 0)
	b.OnObject(1, 11, 2048, 4096, 7680, 7680, 0)
	b.OnReady()

	require.NotNil(t, got)
	assert.Equal(t, StatusDone, status)
	assert.True(t, got.IsDmabuf())
	assert.Len(t, got.Planes, 2)
	assert.Equal(t, 10, got.Planes[0].Fd)
	assert.True(t, mgr.frame.destroyed)
}

func TestDmabufTemporaryCancelSettlesFailed(t *testing.T) {
	mgr := &fakeDmabufManager{}
	b := NewDmabufBackend(nil, mgr, false)

	var status Status
	b.SetOnDone(func(f *Frame, st Status) { status = st })

	require.NoError(t, b.Start())
	b.OnFrame(1920, 1080, 1, 0)
	b.OnCancel(CancelTemporary)

	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, StatusFailed, b.Status())
}

func TestDmabufPermanentCancelSettlesFatal(t *testing.T) {
	mgr := &fakeDmabufManager{}
	b := NewDmabufBackend(nil, mgr, false)

	var status Status
	b.SetOnDone(func(f *Frame, st Status) { status = st })

	require.NoError(t, b.Start())
	b.OnCancel(CancelPermanent)

	assert.Equal(t, StatusFatal, status)
}

func TestDmabufRejectsConcurrentStart(t *testing.T) {
	mgr := &fakeDmabufManager{}
	b := NewDmabufBackend(nil, mgr, false)

	require.NoError(t, b.Start())
	assert.ErrorIs(t, b.Start(), ErrInProgress)
}
