package capture

import (
	"fmt"
	"log/slog"
)

// ScreencopyManager is the subset of zwlr_screencopy_manager_v1 a
// ScreencopyBackend needs. An implementation owns the wire connection; this
// package only needs to be able to start a capture and hear about it again
// through Sink.
type ScreencopyManager interface {
	// CaptureOutput requests a new frame object for the current output
	// contents. overlayCursor mirrors the protocol's own flag of the same
	// name. Events on the returned frame must be delivered to sink until
	// Destroy is called or a terminal event (Ready/Failed) fires.
	CaptureOutput(overlayCursor bool, sink ScreencopySink) (ScreencopyFrame, error)
}

// ScreencopyFrame is a single in-flight zwlr_screencopy_frame_v1 object.
type ScreencopyFrame interface {
	// CopyWithDamage issues copy_with_damage into the compositor-visible
	// buffer the provider allocated after the Buffer event.
	CopyWithDamage(buf Buffer) error
	// Destroy releases the compositor-side frame object. Safe to call more
	// than once; implementations must no-op after the first call.
	Destroy()
}

// ScreencopySink receives zwlr_screencopy_frame_v1 events as they arrive off
// the wire. ScreencopyBackend implements this and registers itself with the
// manager for the lifetime of one capture cycle.
type ScreencopySink interface {
	OnBuffer(format uint32, width, height, stride uint32)
	OnBufferDone()
	OnFlags(flags uint32)
	OnDamage(x, y, width, height uint32)
	OnReady()
	OnFailed()
}

// Buffer is the provider's handle on one compositor-visible buffer (a
// wl_buffer over a bound wl_shm pool). Opaque to this package: the backend
// only carries it from Allocate to CopyWithDamage and back to Release.
type Buffer interface{}

// BufferProvider allocates the shared-memory buffer a ScreencopyBackend
// copies into, sized to the geometry advertised by the Buffer event. An
// implementation is expected to retain the pool across calls with identical
// geometry and recreate it on change, and to close its local fd as soon as
// the compositor has bound the pool.
type BufferProvider interface {
	// Allocate returns pixel storage of at least stride*height bytes plus
	// the compositor-visible buffer bound over it, or an error wrapping
	// ErrAllocationFailure.
	Allocate(format uint32, width, height, stride uint32) (data []byte, buf Buffer, err error)
	Release(buf Buffer)
}

// ScreencopyBackend drives the SHM-based capture protocol.
type ScreencopyBackend struct {
	log           *slog.Logger
	manager       ScreencopyManager
	buffers       BufferProvider
	overlayCursor bool

	status Status
	onDone func(*Frame, Status)

	frame     ScreencopyFrame
	info      FrameInfo
	pixels    []byte
	buf       Buffer
	damage    Rect
	hasDamage bool
}

// NewScreencopyBackend constructs a backend bound to one output's capture
// manager and a buffer provider for the SHM pool. overlayCursor mirrors
// config.Config.OverlayCursor, fixed for this backend's lifetime.
func NewScreencopyBackend(log *slog.Logger, manager ScreencopyManager, buffers BufferProvider, overlayCursor bool) *ScreencopyBackend {
	if log == nil {
		log = slog.Default()
	}
	return &ScreencopyBackend{
		log:           log,
		manager:       manager,
		buffers:       buffers,
		overlayCursor: overlayCursor,
		status:        StatusIdle,
	}
}

func (b *ScreencopyBackend) Status() Status { return b.status }

func (b *ScreencopyBackend) SetOnDone(fn func(*Frame, Status)) { b.onDone = fn }

// Start requests one capture cycle. overlayCursor is fixed per the
// configuration in force for the lifetime of this backend; callers that want
// to toggle it construct a new backend.
func (b *ScreencopyBackend) Start() error {
	if b.status == StatusInProgress {
		return ErrInProgress
	}

	frame, err := b.manager.CaptureOutput(b.overlayCursor, b)
	if err != nil {
		b.status = StatusFailed
		return fmt.Errorf("screencopy: capture_output: %w", ErrCompositorRefused)
	}

	b.frame = frame
	b.status = StatusInProgress
	b.hasDamage = false
	return nil
}

// Stop cancels any outstanding frame and releases its compositor object.
// Safe to call from Idle.
func (b *ScreencopyBackend) Stop() {
	if b.frame != nil {
		b.frame.Destroy()
		b.frame = nil
	}
	if b.buf != nil && b.buffers != nil {
		b.buffers.Release(b.buf)
	}
	b.buf = nil
	b.status = StatusStopped
}

// OnBuffer is the Buffer event: the compositor has told us the format and
// geometry it wants to copy into. We allocate the pool now so CopyWithDamage
// can be issued once BufferDone arrives.
func (b *ScreencopyBackend) OnBuffer(format uint32, width, height, stride uint32) {
	b.info = FrameInfo{Width: int(width), Height: int(height), Stride: int(stride), Format: format}

	data, buf, err := b.buffers.Allocate(format, width, height, stride)
	if err != nil {
		b.log.Warn("screencopy buffer allocation failed", "error", err)
		b.fatal(fmt.Errorf("screencopy: %w: %w", ErrAllocationFailure, err))
		return
	}
	b.pixels = data
	b.buf = buf
}

// OnBufferDone signals every Buffer event for this frame has been sent; this
// implementation only negotiates the single wl_shm buffer, ignoring any
// competing linux_dmabuf offer on the same frame object (the DMA-BUF path is
// driven entirely through export-dmabuf instead, see dmabuf.go).
func (b *ScreencopyBackend) OnBufferDone() {
	if b.pixels == nil {
		b.fatal(fmt.Errorf("screencopy: %w: no buffer negotiated", ErrAllocationFailure))
		return
	}
	if err := b.frame.CopyWithDamage(b.buf); err != nil {
		b.fail(fmt.Errorf("screencopy: copy_with_damage: %w", ErrCaptureFailed))
	}
}

// OnFlags ignores the flags event: the y-invert bit is neither recorded in
// FrameInfo nor logged, and SHM frames are always rendered with the same row
// order whatever the compositor reports here.
func (b *ScreencopyBackend) OnFlags(flags uint32) {}

// OnDamage accumulates the single advertised damage rectangle. Multiple
// Damage events in one cycle are unioned into one bounding rect, matching
// the coarse, best-effort nature of the hint.
func (b *ScreencopyBackend) OnDamage(x, y, width, height uint32) {
	r := Rect{X: int(x), Y: int(y), W: int(width), H: int(height)}
	if !b.hasDamage {
		b.damage = r
		b.hasDamage = true
		return
	}
	b.damage = union(b.damage, r)
}

// OnReady completes the cycle successfully.
func (b *ScreencopyBackend) OnReady() {
	frame := &Frame{
		Width:         b.info.Width,
		Height:        b.info.Height,
		Stride:        b.info.Stride,
		Format:        FourccFromWlShm(b.info.Format),
		Pixels:        b.pixels,
		DamageHint:    b.damage,
		HasDamageHint: b.hasDamage,
	}
	b.settle(StatusDone, frame, nil)
}

// OnFailed is the compositor's Failed event: a single-cycle failure, not
// fatal to the backend.
func (b *ScreencopyBackend) OnFailed() {
	b.fail(ErrCaptureFailed)
}

func (b *ScreencopyBackend) fail(err error) {
	b.log.Debug("screencopy cycle failed", "error", err)
	b.settle(StatusFailed, nil, err)
}

// fatal settles the backend permanently: buffer allocation is an
// environment problem (no SHM, pool creation refused, out of fds) that a
// retry of the same backend won't fix. StatusFatal is what the scheduler
// watches to fail over to a different capture backend instead of looping.
func (b *ScreencopyBackend) fatal(err error) {
	b.log.Warn("screencopy cycle fatal", "error", err)
	b.settle(StatusFatal, nil, err)
}

func (b *ScreencopyBackend) settle(status Status, frame *Frame, err error) {
	if b.frame != nil {
		b.frame.Destroy()
		b.frame = nil
	}
	b.status = status
	if b.onDone != nil {
		b.onDone(frame, status)
	}
}

func union(a, b Rect) Rect {
	x0, y0 := min(a.X, b.X), min(a.Y, b.Y)
	x1 := max(a.X+a.W, b.X+b.W)
	y1 := max(a.Y+a.H, b.Y+b.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
