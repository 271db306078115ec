package capture

import (
	"fmt"
	"log/slog"
)

// DmabufManager is the subset of zwlr_export_dmabuf_manager_v1 a
// DmabufBackend needs.
type DmabufManager interface {
	// CaptureOutput requests a new GPU-buffer export of the current output.
	CaptureOutput(overlayCursor bool, sink DmabufSink) (DmabufFrame, error)
}

// DmabufFrame is a single in-flight zwlr_export_dmabuf_frame_v1 object.
type DmabufFrame interface {
	Destroy()
}

// DmabufSink receives zwlr_export_dmabuf_frame_v1 events.
type DmabufSink interface {
	OnFrame(width, height uint32, format uint32, numObjects int)
	OnObject(index int, fd int, size, offset, stride uint32, pitch uint32, modifier uint64)
	OnReady()
	OnCancel(reason CancelReason)
}

// DmabufBackend drives the export-dmabuf protocol. Unlike screencopy, the
// buffer already belongs to the GPU by the time Ready fires: this backend
// only collects the exported plane fds, it never allocates memory itself.
type DmabufBackend struct {
	log           *slog.Logger
	manager       DmabufManager
	overlayCursor bool

	status Status
	onDone func(*Frame, Status)

	frame   DmabufFrame
	info    FrameInfo
	planes  []Plane
	wantObj int
}

// NewDmabufBackend constructs a backend bound to one output's dmabuf export
// manager. overlayCursor mirrors config.Config.OverlayCursor.
func NewDmabufBackend(log *slog.Logger, manager DmabufManager, overlayCursor bool) *DmabufBackend {
	if log == nil {
		log = slog.Default()
	}
	return &DmabufBackend{log: log, manager: manager, overlayCursor: overlayCursor, status: StatusIdle}
}

func (b *DmabufBackend) Status() Status { return b.status }

func (b *DmabufBackend) SetOnDone(fn func(*Frame, Status)) { b.onDone = fn }

func (b *DmabufBackend) Start() error {
	if b.status == StatusInProgress {
		return ErrInProgress
	}

	frame, err := b.manager.CaptureOutput(b.overlayCursor, b)
	if err != nil {
		b.status = StatusFailed
		return fmt.Errorf("dmabuf: capture_output: %w", ErrCompositorRefused)
	}

	b.frame = frame
	b.status = StatusInProgress
	b.planes = nil
	return nil
}

// Stop cancels any outstanding frame, closing every plane fd collected so
// far so ownership never leaks to the caller on an aborted cycle.
func (b *DmabufBackend) Stop() {
	if b.frame != nil {
		b.frame.Destroy()
		b.frame = nil
	}
	b.closePlanes()
	b.status = StatusStopped
}

func (b *DmabufBackend) closePlanes() {
	for _, p := range b.planes {
		closeFd(p.Fd)
	}
	b.planes = nil
}

// OnFrame is the Frame event announcing geometry and the plane count to
// expect.
func (b *DmabufBackend) OnFrame(width, height uint32, format uint32, numObjects int) {
	b.info = FrameInfo{Width: int(width), Height: int(height), Format: format}
	b.wantObj = numObjects
	b.planes = make([]Plane, 0, numObjects)
}

// OnObject collects one exported plane. index is the protocol's object
// index and is not used: planes are stored in the order their events arrive.
func (b *DmabufBackend) OnObject(index int, fd int, size, offset, stride uint32, pitch uint32, modifier uint64) {
	b.planes = append(b.planes, Plane{
		Fd:       fd,
		Offset:   offset,
		Size:     size,
		Pitch:    pitch,
		Modifier: modifier,
	})
}

// OnReady completes the cycle. The caller now owns every plane fd and is
// responsible for closing each one once the renderer has imported it.
func (b *DmabufBackend) OnReady() {
	if len(b.planes) != b.wantObj {
		b.log.Warn("dmabuf frame ready with unexpected object count", "got", len(b.planes), "want", b.wantObj)
	}
	frame := &Frame{
		Width:  b.info.Width,
		Height: b.info.Height,
		Format: b.info.Format,
		Planes: b.planes,
	}
	b.planes = nil // ownership transferred to frame
	b.settle(StatusDone, frame)
}

// OnCancel is the compositor's Cancel event. A temporary cancel (e.g. output
// resized mid-export) settles Failed so the scheduler retries; a permanent
// one (output gone) settles Fatal so the scheduler stops relying on this
// backend.
func (b *DmabufBackend) OnCancel(reason CancelReason) {
	b.closePlanes()
	if reason == CancelPermanent {
		b.settle(StatusFatal, nil)
		return
	}
	b.settle(StatusFailed, nil)
}

func (b *DmabufBackend) settle(status Status, frame *Frame) {
	if b.frame != nil {
		b.frame.Destroy()
		b.frame = nil
	}
	b.status = status
	if b.onDone != nil {
		b.onDone(frame, status)
	}
}
