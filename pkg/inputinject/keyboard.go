// Package inputinject drives the wlr virtual-keyboard and virtual-pointer
// protocols, translating RFB-level key/pointer events into evdev codes and
// Wayland modifier state.
package inputinject

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"

	"github.com/wlrfb/wlrfb/pkg/keymap"
	"github.com/wlrfb/wlrfb/pkg/keyset"
)

// KeyboardDevice is the subset of *virtual_keyboard.VirtualKeyboard this
// package drives. The real type satisfies it without any adapter; tests
// substitute a fake.
type KeyboardDevice interface {
	Key(t time.Time, code uint32, state virtual_keyboard.KeyState) error
	Modifiers(depressed, latched, locked, group uint32) error
	Close() error
}

// Keyboard injects key events over zwp_virtual_keyboard_v1, resolving
// RFB keysyms to evdev codes via a keymap.Resolver and bracketing every key
// event with a one-shot latched-modifiers() request carrying whatever real
// modifier mask the keymap says that symbol's level needs.
type Keyboard struct {
	log      *slog.Logger
	resolver *keymap.Resolver
	kb       KeyboardDevice

	mu      sync.Mutex
	pressed *keyset.Set
	closed  bool
}

// NewKeyboard binds a virtual keyboard device created against a
// VirtualKeyboardManager the caller owns; construction and manager
// lifecycle live with the compositor bring-up, this package only needs the
// device once it exists.
func NewKeyboard(log *slog.Logger, resolver *keymap.Resolver, kb KeyboardDevice) *Keyboard {
	if log == nil {
		log = slog.Default()
	}
	return &Keyboard{log: log, resolver: resolver, kb: kb, pressed: keyset.New()}
}

// PressSymbol resolves the symbol, fetches the real modifier mask the
// keymap requires to produce it at its level, no-ops if the code is
// already pressed (a duplicate press emits nothing), else emits a one-shot
// latched modifiers() request followed by the key press.
func (k *Keyboard) PressSymbol(symbol uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}

	entry, ok := k.resolver.Find(symbol)
	if !ok {
		k.log.Debug("no keymap entry for symbol", "symbol", symbol)
		return nil
	}

	if k.pressed.Contains(entry.Code) {
		return nil
	}

	if err := k.emitModsAndKey(entry, virtual_keyboard.KeyStatePressed); err != nil {
		return err
	}
	k.pressed.Add(entry.Code)
	return nil
}

// ReleaseSymbol resolves the symbol, no-ops if the code is not currently
// pressed (releasing a key that was never pressed emits nothing), else
// emits the same latched-modifiers()-then-key() pair for the release.
func (k *Keyboard) ReleaseSymbol(symbol uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}

	entry, ok := k.resolver.Find(symbol)
	if !ok {
		return nil
	}

	if !k.pressed.Contains(entry.Code) {
		return nil
	}

	if err := k.emitModsAndKey(entry, virtual_keyboard.KeyStateReleased); err != nil {
		return err
	}
	k.pressed.Remove(entry.Code)
	return nil
}

// ReleaseAll force-releases every currently pressed key. Call this on
// client disconnect so a client that vanished mid-chord doesn't leave keys
// stuck down on the real session. Only the code survives in k.pressed (not
// the keymap.Entry it came from), so there's no per-symbol modifier mask to
// re-latch here; clearing to an unlatched modifiers(0,0,0,0) before each
// forced release is the safe default.
func (k *Keyboard) ReleaseAll() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}

	var firstErr error
	for _, code := range k.pressed.Codes() {
		if err := k.kb.Modifiers(0, 0, 0, 0); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := k.kb.Key(time.Now(), uint32(code), virtual_keyboard.KeyStateReleased); err != nil && firstErr == nil {
			firstErr = err
		}
		k.pressed.Remove(code)
	}
	return firstErr
}

// emitModsAndKey sends one bracketed modifiers()/key() pair: a latched
// modifier event carrying the resolved entry's mask (latched = mods,
// depressed = locked = group = 0 — this injector never holds a real
// modifier down, only latches a one-shot one for the key it brackets),
// then the key event itself at entry.Code. The modifier event always
// precedes the key event.
func (k *Keyboard) emitModsAndKey(entry keymap.Entry, state virtual_keyboard.KeyState) error {
	if err := k.kb.Modifiers(0, entry.Mods, 0, 0); err != nil {
		return fmt.Errorf("inputinject: modifiers: %w", err)
	}
	if err := k.kb.Key(time.Now(), uint32(entry.Code), state); err != nil {
		return fmt.Errorf("inputinject: key: %w", err)
	}
	return nil
}

// keymapFormatXKBv1 is zwp_virtual_keyboard_v1's KEYMAP_FORMAT_XKB_V1, the
// only format the protocol currently defines.
const keymapFormatXKBv1 uint32 = 1

// KeymapUploader is implemented by keyboard devices that accept an explicit
// compiled keymap before any key/modifiers request. Declared separately
// from KeyboardDevice, rather than folded into it, because some devices
// (uinput) ship a fixed built-in keymap with no way to replace it; keeping
// it a distinct, optional capability means a device without the method
// still satisfies KeyboardDevice and simply never receives the resolver's
// keymap.
type KeymapUploader interface {
	Keymap(format uint32, fd int32, size uint32) error
}

// UploadKeymap hands the resolver's compiled keymap to the device if it
// implements KeymapUploader, so the compositor's key-code numbering for
// this virtual keyboard matches what the keymap.Resolver computed rather
// than whatever default the device would otherwise advertise. A device
// without the capability leaves this a silent no-op.
func (k *Keyboard) UploadKeymap(blob *keymap.KeymapBlob) error {
	uploader, ok := k.kb.(KeymapUploader)
	if !ok {
		return nil
	}
	if err := uploader.Keymap(keymapFormatXKBv1, int32(blob.Segment.Fd), uint32(blob.Size)); err != nil {
		return fmt.Errorf("inputinject: upload keymap: %w", err)
	}
	return nil
}

// Close releases every pressed key before tearing down.
func (k *Keyboard) Close() error {
	if err := k.ReleaseAll(); err != nil {
		k.log.Warn("error releasing keys on close", "error", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true

	if err := k.kb.Close(); err != nil {
		return fmt.Errorf("inputinject: close keyboard: %w", err)
	}
	return nil
}
