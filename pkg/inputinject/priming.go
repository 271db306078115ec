package inputinject

import "time"

// Prime sends a harmless Escape press+release through the keyboard
// immediately after the virtual device is created. Some compositors
// silently drop the very first key event a freshly bound
// zwp_virtual_keyboard_v1 sends while they finish wiring the device into
// their input stack; priming it with a throwaway key means a user's actual
// first keypress isn't the one that gets lost.
func Prime(kb *Keyboard) error {
	const xkEscape = 0xff1b

	if err := kb.PressSymbol(xkEscape); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return kb.ReleaseSymbol(xkEscape)
}
