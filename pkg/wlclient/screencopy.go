package wlclient

import (
	"fmt"
	"log/slog"

	"github.com/wlrfb/wlrfb/pkg/capture"
	"github.com/wlrfb/wlrfb/pkg/shm"
)

// wl_output opcodes this package needs; core-protocol, fixed by wayland.xml.
const evOutputMode = 1

// wl_output.mode's flags bit marking the mode currently in effect, as
// opposed to one merely supported.
const outputModeCurrent = 0x1

// OutputInfo is the geometry this bridge captures at: the current mode of
// the bound output.
type OutputInfo struct {
	Width, Height int
}

// BindOutput binds the first wl_output global the compositor advertised and
// reads back its current mode via one roundtrip. Multi-monitor selection is
// out of scope: this bridge always captures whatever the compositor calls
// its first output.
func BindOutput(d *Display) (*extProxy, OutputInfo, error) {
	var info OutputInfo
	out, err := bindExtension(d, "wl_output", 3, func(opcode uint32, args []interface{}) {
		if opcode != evOutputMode || len(args) < 3 {
			return
		}
		flags, _ := args[0].(uint32)
		if flags&outputModeCurrent == 0 {
			return
		}
		w, _ := args[1].(int32)
		h, _ := args[2].(int32)
		info = OutputInfo{Width: int(w), Height: int(h)}
	})
	if err != nil {
		return nil, OutputInfo{}, err
	}
	if err := d.Roundtrip(); err != nil {
		return nil, OutputInfo{}, fmt.Errorf("wlclient: output mode roundtrip: %w", err)
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, OutputInfo{}, fmt.Errorf("wlclient: compositor reported no current output mode")
	}
	return out, info, nil
}

// zwlr_screencopy request/event opcodes, fixed by the upstream protocol XML.
const (
	opScreencopyManagerCaptureOutput       = 0
	opScreencopyManagerCaptureOutputRegion = 1
	opScreencopyManagerDestroy             = 2

	opScreencopyFrameCopy           = 0
	opScreencopyFrameDestroy        = 1
	opScreencopyFrameCopyWithDamage = 2

	evScreencopyFrameBuffer     = 0
	evScreencopyFrameFlags      = 1
	evScreencopyFrameReady      = 2
	evScreencopyFrameFailed     = 3
	evScreencopyFrameDamage     = 4
	evScreencopyFrameBufferDone = 6
)

// ScreencopyManager binds zwlr_screencopy_manager_v1 and hands out frame
// objects for one wl_output. Satisfies capture.ScreencopyManager.
type ScreencopyManager struct {
	log    *slog.Logger
	output *extProxy
	mgr    *extProxy
}

// NewScreencopyManager binds the global on d for the given output proxy
// (the wl_output the compositor advertised for this bridge's target
// monitor).
func NewScreencopyManager(log *slog.Logger, d *Display, output *extProxy) (*ScreencopyManager, error) {
	mgr, err := bindExtension(d, IfaceScreencopyManager, 3, func(uint32, []interface{}) {})
	if err != nil {
		return nil, err
	}
	return &ScreencopyManager{log: log, output: output, mgr: mgr}, nil
}

// CaptureOutput implements capture.ScreencopyManager.
func (m *ScreencopyManager) CaptureOutput(overlayCursor bool, sink capture.ScreencopySink) (capture.ScreencopyFrame, error) {
	cursor := uint32(0)
	if overlayCursor {
		cursor = 1
	}

	child, err := m.mgr.requestNewID(opScreencopyManagerCaptureOutput, "zwlr_screencopy_frame_v1", 3, cursor, m.output.proxy)
	if err != nil {
		return nil, fmt.Errorf("wlclient: screencopy capture_output: %w", err)
	}

	f := &screencopyFrame{log: m.log, proxy: child, sink: sink}
	child.onDispatch(f.dispatch)
	return f, nil
}

type screencopyFrame struct {
	log       *slog.Logger
	proxy     *extProxy
	sink      capture.ScreencopySink
	destroyed bool
}

func (f *screencopyFrame) dispatch(opcode uint32, args []interface{}) {
	switch opcode {
	case evScreencopyFrameBuffer:
		format, _ := args[0].(uint32)
		w, _ := args[1].(uint32)
		h, _ := args[2].(uint32)
		stride, _ := args[3].(uint32)
		f.sink.OnBuffer(format, w, h, stride)
	case evScreencopyFrameBufferDone:
		f.sink.OnBufferDone()
	case evScreencopyFrameFlags:
		flags, _ := args[0].(uint32)
		f.sink.OnFlags(flags)
	case evScreencopyFrameDamage:
		x, _ := args[0].(uint32)
		y, _ := args[1].(uint32)
		w, _ := args[2].(uint32)
		h, _ := args[3].(uint32)
		f.sink.OnDamage(x, y, w, h)
	case evScreencopyFrameReady:
		f.sink.OnReady()
	case evScreencopyFrameFailed:
		f.sink.OnFailed()
	default:
		f.log.Debug("unhandled screencopy frame event", "opcode", opcode)
	}
}

// CopyWithDamage implements capture.ScreencopyFrame.
func (f *screencopyFrame) CopyWithDamage(buf capture.Buffer) error {
	b, ok := buf.(*shmBuffer)
	if !ok {
		return fmt.Errorf("wlclient: copy_with_damage: unexpected buffer type %T", buf)
	}
	return f.proxy.request(opScreencopyFrameCopyWithDamage, b.buffer.proxy)
}

// Destroy implements capture.ScreencopyFrame.
func (f *screencopyFrame) Destroy() {
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.proxy.destroy(opScreencopyFrameDestroy)
}

// wl_shm / wl_shm_pool / wl_buffer request opcodes; core-protocol, fixed by
// wayland.xml.
const (
	opShmCreatePool = 0

	opShmPoolCreateBuffer = 0
	opShmPoolDestroy      = 1

	opBufferDestroy = 0
)

// shmBuffer is one compositor-visible wl_buffer over a bound wl_shm pool,
// plus the local mapping the capture backend reads pixels from. Implements
// the opaque capture.Buffer.
type shmBuffer struct {
	pool   *extProxy
	buffer *extProxy
	mapped []byte

	w, h, s uint32
	format  uint32
}

// shmBufferProvider implements capture.BufferProvider over pkg/shm and the
// compositor's wl_shm global, recreating the pool only when the requested
// geometry changes, per the retained-pool invariant the SHM backend relies
// on. The local memfd fd is closed as soon as create_pool has bound it; only
// the mapping and the wl objects survive across frames.
type shmBufferProvider struct {
	log *slog.Logger
	shm *extProxy

	cached *shmBuffer
}

// NewShmBufferProvider binds wl_shm on d and constructs a
// capture.BufferProvider backed by memfd-allocated, mmap-shared segments.
func NewShmBufferProvider(log *slog.Logger, d *Display) (capture.BufferProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	shmProxy, err := bindExtension(d, "wl_shm", 1, func(uint32, []interface{}) {})
	if err != nil {
		return nil, fmt.Errorf("wlclient: %w: %w", capture.ErrAllocationFailure, err)
	}
	return &shmBufferProvider{log: log, shm: shmProxy}, nil
}

func (p *shmBufferProvider) Allocate(format uint32, width, height, stride uint32) ([]byte, capture.Buffer, error) {
	if c := p.cached; c != nil && c.w == width && c.h == height && c.s == stride && c.format == format {
		return c.mapped, c, nil
	}

	p.release()

	size := int64(stride) * int64(height)
	seg, err := shm.Alloc(size)
	if err != nil {
		return nil, nil, fmt.Errorf("wlclient: %w: %w", capture.ErrAllocationFailure, err)
	}
	mapped, err := seg.Map()
	if err != nil {
		seg.Close()
		return nil, nil, fmt.Errorf("wlclient: %w: %w", capture.ErrAllocationFailure, err)
	}

	pool, err := p.shm.requestNewID(opShmCreatePool, "wl_shm_pool", 1, uintptr(seg.Fd), int32(size))
	if err != nil {
		_ = seg.Unmap(mapped)
		seg.Close()
		return nil, nil, fmt.Errorf("wlclient: %w: create_pool: %w", capture.ErrAllocationFailure, err)
	}
	// The compositor holds its own reference once create_pool is on the
	// wire; the local fd must not outlive this call.
	if err := seg.Close(); err != nil {
		p.log.Warn("shm fd close failed", "error", err)
	}

	buffer, err := pool.requestNewID(opShmPoolCreateBuffer, "wl_buffer", 1,
		int32(0), int32(width), int32(height), int32(stride), format)
	if err != nil {
		pool.destroy(opShmPoolDestroy)
		_ = seg.Unmap(mapped)
		return nil, nil, fmt.Errorf("wlclient: %w: create_buffer: %w", capture.ErrAllocationFailure, err)
	}

	p.cached = &shmBuffer{
		pool:   pool,
		buffer: buffer,
		mapped: mapped,
		w:      width,
		h:      height,
		s:      stride,
		format: format,
	}
	return mapped, p.cached, nil
}

func (p *shmBufferProvider) Release(buf capture.Buffer) {
	if p.cached == nil || buf != capture.Buffer(p.cached) {
		return
	}
	p.release()
}

func (p *shmBufferProvider) release() {
	c := p.cached
	if c == nil {
		return
	}
	c.buffer.destroy(opBufferDestroy)
	c.pool.destroy(opShmPoolDestroy)
	if err := shm.Unmap(c.mapped); err != nil {
		p.log.Warn("shm unmap failed", "error", err)
	}
	p.cached = nil
}
