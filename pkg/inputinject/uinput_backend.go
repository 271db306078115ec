package inputinject

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bendahl/uinput"
	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
)

// keyLeftShift is the evdev code for KEY_LEFTSHIFT. zwp_virtual_keyboard_v1
// takes an xkb modifier mask and lets the compositor apply it; /dev/uinput
// has no such concept, so UinputKeyboard approximates the latched mask by
// holding an actual shift key down around the key event it brackets.
const keyLeftShift = 42

// UinputKeyboard satisfies KeyboardDevice over /dev/uinput, for compositors
// that don't advertise zwp_virtual_keyboard_v1 (plain X11 sessions, or a
// wlroots compositor built without the protocol).
type UinputKeyboard struct {
	kb uinput.Keyboard

	mu        sync.Mutex
	shiftDown bool
	closed    bool
}

// NewUinputKeyboard opens /dev/uinput and registers a virtual keyboard
// device named deviceName.
func NewUinputKeyboard(deviceName string) (*UinputKeyboard, error) {
	kb, err := uinput.CreateKeyboard("/dev/uinput", []byte(deviceName))
	if err != nil {
		return nil, fmt.Errorf("inputinject: create uinput keyboard: %w", err)
	}
	return &UinputKeyboard{kb: kb}, nil
}

// Key presses or releases an evdev code. code is already key-code-minus-8
// (see keymap.xkb's C helper), the same convention zwp_virtual_keyboard_v1
// and plain Linux evdev share, so no translation happens here.
func (u *UinputKeyboard) Key(_ time.Time, code uint32, state virtual_keyboard.KeyState) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}

	if state == virtual_keyboard.KeyStatePressed {
		return u.kb.KeyDown(int(code))
	}
	return u.kb.KeyUp(int(code))
}

// Modifiers approximates pkg/inputinject/keyboard.go's one-shot latched
// mask (the real modifier this bridge resolves, via keymap.Entry.Mods) as
// a held Shift key: uinput has no modifier-mask concept to hand the
// compositor directly, so any non-zero latched mask is treated as "this
// key needs Shift" and any zero mask releases it. A keymap entry whose
// mask needs a modifier other than Shift (AltGr, etc.) degrades to plain
// Shift under this fallback; the wlr virtual-keyboard path (the primary
// one) carries the real mask untouched.
func (u *UinputKeyboard) Modifiers(_, latched, _, _ uint32) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}

	want := latched != 0
	if want == u.shiftDown {
		return nil
	}
	u.shiftDown = want
	if want {
		return u.kb.KeyDown(keyLeftShift)
	}
	return u.kb.KeyUp(keyLeftShift)
}

// Close releases the uinput keyboard device.
func (u *UinputKeyboard) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.kb.Close()
}

// UinputPointer satisfies PointerDevice over /dev/uinput. Absolute
// positioning isn't exposed by a uinput relative mouse, but
// inputinject.Pointer already converts RFB's absolute coordinates to
// relative deltas before calling MoveRelative, so that limitation never
// surfaces here.
type UinputPointer struct {
	mouse uinput.Mouse
	log   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewUinputPointer opens /dev/uinput and registers a virtual mouse device
// named deviceName.
func NewUinputPointer(log *slog.Logger, deviceName string) (*UinputPointer, error) {
	if log == nil {
		log = slog.Default()
	}
	mouse, err := uinput.CreateMouse("/dev/uinput", []byte(deviceName))
	if err != nil {
		return nil, fmt.Errorf("inputinject: create uinput mouse: %w", err)
	}
	return &UinputPointer{mouse: mouse, log: log}, nil
}

func (u *UinputPointer) MoveRelative(dx, dy float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	if err := u.mouse.Move(int32(dx), int32(dy)); err != nil {
		u.log.Warn("uinput mouse move failed", "error", err)
	}
}

func (u *UinputPointer) Button(_ time.Time, button uint32, state virtual_pointer.ButtonState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}

	pressed := state == virtual_pointer.BUTTON_STATE_PRESSED
	var err error
	switch button {
	case virtual_pointer.BTN_LEFT:
		if pressed {
			err = u.mouse.LeftPress()
		} else {
			err = u.mouse.LeftRelease()
		}
	case virtual_pointer.BTN_MIDDLE:
		if pressed {
			err = u.mouse.MiddlePress()
		} else {
			err = u.mouse.MiddleRelease()
		}
	case virtual_pointer.BTN_RIGHT:
		if pressed {
			err = u.mouse.RightPress()
		} else {
			err = u.mouse.RightRelease()
		}
	default:
		return
	}
	if err != nil {
		u.log.Warn("uinput mouse button failed", "error", err)
	}
}

// ScrollVertical sends discrete wheel steps; uinput has no fractional
// wheel delta, so the fractional part of delta is dropped.
func (u *UinputPointer) ScrollVertical(delta float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || delta == 0 {
		return
	}

	// REL_WHEEL counts positive for scrolling up, the opposite sign of delta.
	err := u.mouse.Wheel(false, int32(-delta))
	if err != nil {
		u.log.Warn("uinput mouse wheel failed", "error", err)
	}
}

// ScrollHorizontal is a no-op: horizontal scroll is not forwarded through
// the uinput fallback.
func (u *UinputPointer) ScrollHorizontal(_ float64) {}

// Frame is a no-op: uinput applies each ioctl immediately, unlike
// zwlr_virtual_pointer_v1's explicit frame() batching request.
func (u *UinputPointer) Frame() {}

func (u *UinputPointer) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.mouse.Close()
}
