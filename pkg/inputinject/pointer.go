package inputinject

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
)

// PointerDevice is the subset of *virtual_pointer.VirtualPointer this
// package drives. The real type satisfies it without any adapter; tests
// substitute a fake.
type PointerDevice interface {
	MoveRelative(dx, dy float64)
	Button(t time.Time, button uint32, state virtual_pointer.ButtonState)
	ScrollVertical(delta float64)
	ScrollHorizontal(delta float64)
	Frame()
	Close() error
}

// Pointer injects pointer motion, buttons, and scroll over
// zwlr_virtual_pointer_v1, converting RFB's absolute framebuffer coordinates
// into the relative moves the protocol actually supports.
type Pointer struct {
	log *slog.Logger
	ptr PointerDevice

	width, height int

	mu          sync.Mutex
	x, y        float64
	initialized bool
	closed      bool
}

// NewPointer binds a virtual pointer device to a framebuffer of the given
// size, used to clamp absolute positions and convert them to relative
// moves.
func NewPointer(log *slog.Logger, ptr PointerDevice, width, height int) *Pointer {
	if log == nil {
		log = slog.Default()
	}
	return &Pointer{
		log:    log,
		ptr:    ptr,
		width:  width,
		height: height,
		x:      float64(width) / 2,
		y:      float64(height) / 2,
	}
}

// MoveAbsolute moves the pointer to a fractional (0..1) framebuffer
// position, as RFB pointer events report it. The first call primes the
// tracked position from the screen center rather than jumping the whole
// distance, matching how a freshly connected client's first move looks like
// any other relative nudge rather than a teleport.
func (p *Pointer) MoveAbsolute(fracX, fracY float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	targetX := clamp(fracX, 0, 1) * float64(p.width)
	targetY := clamp(fracY, 0, 1) * float64(p.height)

	fromX, fromY := p.x, p.y
	if !p.initialized {
		fromX, fromY = float64(p.width)/2, float64(p.height)/2
		p.initialized = true
	}

	dx := targetX - fromX
	dy := targetY - fromY
	p.x, p.y = targetX, targetY

	if dx != 0 || dy != 0 {
		p.ptr.MoveRelative(dx, dy)
	}
	return nil
}

// Button presses or releases an RFB button index (1=left, 2=middle,
// 3=right); unknown indices are ignored.
func (p *Pointer) Button(button int, pressed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	var btn uint32
	switch button {
	case 1:
		btn = virtual_pointer.BTN_LEFT
	case 2:
		btn = virtual_pointer.BTN_MIDDLE
	case 3:
		btn = virtual_pointer.BTN_RIGHT
	default:
		return nil
	}

	state := virtual_pointer.BUTTON_STATE_RELEASED
	if pressed {
		state = virtual_pointer.BUTTON_STATE_PRESSED
	}
	p.ptr.Button(time.Now(), btn, state)
	p.ptr.Frame()
	return nil
}

// Scroll sends a wheel event. Positive deltaY scrolls down.
func (p *Pointer) Scroll(deltaX, deltaY float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	if deltaY != 0 {
		p.ptr.ScrollVertical(deltaY)
	}
	if deltaX != 0 {
		p.ptr.ScrollHorizontal(deltaX)
	}
	p.ptr.Frame()
	return nil
}

// Close releases the virtual pointer device.
func (p *Pointer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.ptr.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
